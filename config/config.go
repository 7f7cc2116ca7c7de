package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/yourusername/predios-api/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Config struct {
	Port             string
	DatabaseURL      string
	JWTSecret        string
	JWTRefreshSecret string
	CronAPIKey       string

	// Proveedor fiscal. La credencial por proyecto vive en la base; aquí va
	// la URL base y el timeout del cliente HTTP.
	FiscalAPIURL         string
	FiscalTimeoutSeconds int

	// Tope de facturas por lote de aprobación; las llamadas al proveedor son
	// secuenciales y un lote grande mantiene abierta la petición.
	MaxApprovalBatch int
}

func LoadConfig() (*Config, error) {
	godotenv.Load()

	return &Config{
		Port:                 os.Getenv("PORT"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		JWTRefreshSecret:     os.Getenv("JWT_REFRESH_SECRET"),
		CronAPIKey:           os.Getenv("CRON_API_KEY"),
		FiscalAPIURL:         os.Getenv("FISCAL_API_URL"),
		FiscalTimeoutSeconds: getEnvInt("FISCAL_TIMEOUT_SECONDS", 30),
		MaxApprovalBatch:     getEnvInt("MAX_APPROVAL_BATCH", 200),
	}, nil
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Proyecto{},
		&models.Servicio{},
		&models.Cliente{},
		&models.Contacto{},
		&models.Propiedad{},
		&models.AreaDesglosada{},
		&models.ConfiguracionCobro{},
		&models.Factura{},
		&models.FacturaItem{},
		&models.Cobro{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// NewLogger construye el logger estructurado del proceso.
func NewLogger() (*zap.Logger, error) {
	logCfg := zap.NewProductionConfig()
	logCfg.EncoderConfig.TimeKey = "ts"
	return logCfg.Build()
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}
