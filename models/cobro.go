package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Formas de cobro locales.
const (
	FormaCheque        = "cheque"
	FormaTransferencia = "transferencia"
	FormaEfectivo      = "efectivo"
	FormaTarjeta       = "tarjeta"
)

// Cobro es un evento de recaudación contra una factura. CobroExternoID es el
// identificador del proveedor fiscal y funciona como llave de deduplicación.
type Cobro struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	FacturaID uint    `gorm:"not null;index" json:"factura_id"`
	Factura   Factura `gorm:"foreignKey:FacturaID" json:"factura,omitempty"`

	Monto      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"monto"`
	FormaCobro string          `gorm:"size:20;not null" json:"forma_cobro"`
	Fecha      time.Time       `gorm:"not null" json:"fecha"`

	CobroExternoID string `gorm:"uniqueIndex;size:100;not null" json:"cobro_externo_id"`
	NumeroCheque   string `gorm:"size:50" json:"numero_cheque"`
}

// TableName overrides the table name
func (Cobro) TableName() string {
	return "cobros"
}

// ConfiguracionCobro sobreescribe tarifa y/o impuesto para una propiedad y
// cliente, opcionalmente restringida a un servicio. La resolución prefiere
// la configuración específica del servicio sobre la genérica (ServicioID
// nulo) y ambas sobre los valores por defecto del servicio.
type ConfiguracionCobro struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	PropiedadID uint  `gorm:"not null;index" json:"propiedad_id"`
	ClienteID   uint  `gorm:"not null;index" json:"cliente_id"`
	ServicioID  *uint `gorm:"index" json:"servicio_id,omitempty"`

	AplicaImpuesto *bool    `json:"aplica_impuesto,omitempty"`
	TasaImpuesto   *float64 `json:"tasa_impuesto,omitempty"` // fracción; valores > 1 se interpretan como porcentaje

	PrecioEspecial *decimal.Decimal `gorm:"type:decimal(12,2)" json:"precio_especial,omitempty"`
}

// TableName overrides the table name
func (ConfiguracionCobro) TableName() string {
	return "configuraciones_cobro"
}
