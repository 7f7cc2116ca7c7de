package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/yourusername/predios-api/config"
	"github.com/yourusername/predios-api/models"
	"github.com/yourusername/predios-api/utils"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB() *gorm.DB {
	db, _ := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	db.AutoMigrate(
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
	)
	return db
}

type MockFiscalClient struct {
	EmitirDocumentoFunc func(apiKey string, doc *utils.DocumentoFiscal) (string, error)
	ListarCobrosFunc    func(apiKey, documentoID string) ([]utils.CobroExterno, error)
}

func (m *MockFiscalClient) EmitirDocumento(apiKey string, doc *utils.DocumentoFiscal) (string, error) {
	return m.EmitirDocumentoFunc(apiKey, doc)
}

func (m *MockFiscalClient) ListarCobros(apiKey, documentoID string) ([]utils.CobroExterno, error) {
	return m.ListarCobrosFunc(apiKey, documentoID)
}

func newTestHandler(db *gorm.DB, mock utils.FiscalClientInterface) *FacturacionHandler {
	return &FacturacionHandler{
		db:           db,
		config:       &config.Config{MaxApprovalBatch: 200},
		fiscalClient: mock,
		logger:       zap.NewNop(),
	}
}

func uintPtr(v uint) *uint { return &v }

type escenario struct {
	proyecto models.Proyecto
	servicio models.Servicio
	cliente  models.Cliente
	props    []models.Propiedad
}

// crearEscenario siembra un proyecto con tres propiedades: dos con
// propietario facturable y una sin cliente vinculado.
func crearEscenario(db *gorm.DB) *escenario {
	e := &escenario{}

	e.proyecto = models.Proyecto{Nombre: "Urbanización Los Ceibos", FiscalAPIKey: "clave-proyecto"}
	db.Create(&e.proyecto)

	e.servicio = models.Servicio{
		Codigo:            "ALICUOTA",
		Nombre:            "Alícuota de mantenimiento",
		TarifaBase:        decimal.RequireFromString("1.50"),
		TasaImpuesto:      decimal.RequireFromString("0.12"),
		UnidadArea:        true,
		ProductoExternoID: "PROD-1",
	}
	db.Create(&e.servicio)

	e.cliente = models.Cliente{
		TipoPersona: models.PersonaNatural,
		Cedula:      "0912345678",
		Nombres:     "María Salazar",
	}
	db.Create(&e.cliente)

	e.props = []models.Propiedad{
		{
			ProyectoID:    e.proyecto.ID,
			Identificador: "TORRE A / DPTO 101",
			AreaTotal:     100,
			TipoPagador:   models.PagadorPropietario,
			PropietarioID: uintPtr(e.cliente.ID),
		},
		{
			ProyectoID:    e.proyecto.ID,
			Identificador: "TORRE A / DPTO 102",
			AreaTotal:     50,
			TipoPagador:   models.PagadorPropietario,
			PropietarioID: uintPtr(e.cliente.ID),
		},
		{
			ProyectoID:    e.proyecto.ID,
			Identificador: "TORRE B / DPTO 201",
			AreaTotal:     80,
			TipoPagador:   models.PagadorPropietario,
		},
	}
	for i := range e.props {
		db.Create(&e.props[i])
	}
	return e
}

func postJSON(router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewBuffer(data))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

type respuestaGeneracion struct {
	Success   bool `json:"success"`
	Generadas int  `json:"generadas"`
	Omitidas  int  `json:"omitidas"`
	Errores   int  `json:"errores"`
}

func TestGenerarFacturas(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupTestDB()
	e := crearEscenario(db)
	handler := newTestHandler(db, &MockFiscalClient{})

	router := gin.New()
	router.POST("/facturas/generar", handler.GenerarFacturas)

	peticion := GenerarFacturasRequest{
		ProyectoID: e.proyecto.ID,
		ServicioID: e.servicio.ID,
		Periodo:    "2026-03",
	}

	t.Run("Generacion inicial", func(t *testing.T) {
		w := postJSON(router, "/facturas/generar", peticion)
		assert.Equal(t, http.StatusOK, w.Code)

		var resp respuestaGeneracion
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.True(t, resp.Success)
		assert.Equal(t, 2, resp.Generadas)
		assert.Equal(t, 1, resp.Omitidas) // propiedad sin cliente vinculado
		assert.Equal(t, 0, resp.Errores)

		var factura models.Factura
		assert.NoError(t, db.Preload("Items").
			Where("propiedad_id = ?", e.props[0].ID).First(&factura).Error)
		assert.Equal(t, models.EstadoBorrador, factura.Estado)
		assert.Equal(t, "150.00", factura.Subtotal.StringFixed(2))
		assert.Equal(t, "18.00", factura.Impuesto.StringFixed(2))
		assert.Equal(t, "168.00", factura.Total.StringFixed(2))
		assert.Equal(t, factura.Total.StringFixed(2), factura.Subtotal.Add(factura.Impuesto).StringFixed(2))
		assert.Len(t, factura.Items, 1)
		assert.Equal(t, "ALICUOTA", factura.Items[0].CodigoServicio)
	})

	t.Run("Generacion repetida es idempotente", func(t *testing.T) {
		w := postJSON(router, "/facturas/generar", peticion)
		assert.Equal(t, http.StatusOK, w.Code)

		var resp respuestaGeneracion
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, 0, resp.Generadas)
		assert.Equal(t, 3, resp.Omitidas)
		assert.Equal(t, 0, resp.Errores)

		var total int64
		db.Model(&models.Factura{}).Count(&total)
		assert.Equal(t, int64(2), total)
	})

	t.Run("Lista explicita de propiedades", func(t *testing.T) {
		sub := peticion
		sub.Periodo = "2026-04"
		sub.PropiedadesIDs = []uint{e.props[1].ID}

		w := postJSON(router, "/facturas/generar", sub)
		assert.Equal(t, http.StatusOK, w.Code)

		var resp respuestaGeneracion
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, 1, resp.Generadas)
		assert.Equal(t, 0, resp.Omitidas)
	})

	t.Run("Periodo invalido", func(t *testing.T) {
		mala := peticion
		mala.Periodo = "03-2026"
		w := postJSON(router, "/facturas/generar", mala)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Servicio inexistente", func(t *testing.T) {
		mala := peticion
		mala.ServicioID = 9999
		w := postJSON(router, "/facturas/generar", mala)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestGenerarFacturasServicioRestringidoPorArea(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupTestDB()
	e := crearEscenario(db)
	handler := newTestHandler(db, &MockFiscalClient{})

	parqueo := models.Servicio{
		Codigo:     "PARQ",
		Nombre:     "Mantenimiento de parqueadero",
		TarifaBase: decimal.RequireFromString("0.80"),
		UnidadArea: true,
		TipoArea:   "parqueadero",
	}
	db.Create(&parqueo)

	// Solo la primera propiedad tiene desglose de parqueadero.
	db.Create(&models.AreaDesglosada{PropiedadID: e.props[0].ID, Tipo: "parqueadero", Area: 10})

	router := gin.New()
	router.POST("/facturas/generar", handler.GenerarFacturas)

	w := postJSON(router, "/facturas/generar", GenerarFacturasRequest{
		ProyectoID: e.proyecto.ID,
		ServicioID: parqueo.ID,
		Periodo:    "2026-03",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp respuestaGeneracion
	json.Unmarshal(w.Body.Bytes(), &resp)
	// Sin desglose del subtipo la propiedad se omite, nunca es error.
	assert.Equal(t, 1, resp.Generadas)
	assert.Equal(t, 2, resp.Omitidas)
	assert.Equal(t, 0, resp.Errores)

	var factura models.Factura
	assert.NoError(t, db.Preload("Items").Where("propiedad_id = ?", e.props[0].ID).First(&factura).Error)
	assert.Equal(t, "8.00", factura.Subtotal.StringFixed(2))
	assert.True(t, factura.Impuesto.IsZero())

	var cuantas int64
	db.Model(&models.Factura{}).Where("propiedad_id = ?", e.props[1].ID).Count(&cuantas)
	assert.Equal(t, int64(0), cuantas)
}

type respuestaAprobacion struct {
	Success        bool `json:"success"`
	Aprobadas      int  `json:"aprobadas"`
	Errores        int  `json:"errores"`
	ErroresDetalle []struct {
		FacturaID uint   `json:"facturaId"`
		Error     string `json:"error"`
	} `json:"erroresDetalle"`
}

func generarBorradores(t *testing.T, db *gorm.DB, e *escenario, handler *FacturacionHandler) []models.Factura {
	t.Helper()
	router := gin.New()
	router.POST("/facturas/generar", handler.GenerarFacturas)
	w := postJSON(router, "/facturas/generar", GenerarFacturasRequest{
		ProyectoID: e.proyecto.ID,
		ServicioID: e.servicio.ID,
		Periodo:    "2026-03",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var borradores []models.Factura
	assert.NoError(t, db.Order("id").Find(&borradores).Error)
	return borradores
}

func TestAprobarFacturas(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupTestDB()
	e := crearEscenario(db)

	var numerosAsignados []string
	llamadas := 0
	mock := &MockFiscalClient{
		EmitirDocumentoFunc: func(apiKey string, doc *utils.DocumentoFiscal) (string, error) {
			llamadas++
			numerosAsignados = append(numerosAsignados, doc.Documento)
			if llamadas == 2 {
				return "", errors.New("el proveedor respondió 500: error interno")
			}
			return fmt.Sprintf("EXT-%d", llamadas), nil
		},
	}
	handler := newTestHandler(db, mock)
	borradores := generarBorradores(t, db, e, handler)
	assert.Len(t, borradores, 2)

	router := gin.New()
	router.POST("/facturas/aprobar", handler.AprobarFacturas)

	w := postJSON(router, "/facturas/aprobar", AprobarFacturasRequest{
		FacturaIDs:             []uint{borradores[0].ID, borradores[1].ID},
		PrefijoSecuencia:       "001-001-",
		NumeroSecuenciaInicial: 45,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp respuestaAprobacion
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, 1, resp.Aprobadas)
	assert.Equal(t, 1, resp.Errores)
	assert.Len(t, resp.ErroresDetalle, 1)
	assert.Equal(t, borradores[1].ID, resp.ErroresDetalle[0].FacturaID)

	// La secuencia avanza también en la emisión fallida: sin huecos ni saltos.
	assert.Equal(t, []string{"001-001-000000045", "001-001-000000046"}, numerosAsignados)

	var aprobada, fallida models.Factura
	db.First(&aprobada, borradores[0].ID)
	db.First(&fallida, borradores[1].ID)

	assert.Equal(t, models.EstadoEnviada, aprobada.Estado)
	assert.Equal(t, "EXT-1", aprobada.DocumentoExternoID)
	assert.Equal(t, "001-001-000000045", aprobada.NumeroDocumento)
	assert.NotNil(t, aprobada.FechaAprobacion)
	assert.Empty(t, aprobada.NotaError)

	assert.Equal(t, models.EstadoBorrador, fallida.Estado)
	assert.Empty(t, fallida.DocumentoExternoID)
	assert.Contains(t, fallida.NotaError, "error interno")

	t.Run("Reintento excluye las ya enviadas", func(t *testing.T) {
		numerosAsignados = nil
		w := postJSON(router, "/facturas/aprobar", AprobarFacturasRequest{
			FacturaIDs:             []uint{borradores[0].ID, borradores[1].ID},
			PrefijoSecuencia:       "001-001-",
			NumeroSecuenciaInicial: 47,
		})
		assert.Equal(t, http.StatusOK, w.Code)

		var resp respuestaAprobacion
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, 1, resp.Aprobadas)
		assert.Equal(t, 0, resp.Errores)
		// Solo el borrador pendiente consume secuencia.
		assert.Equal(t, []string{"001-001-000000047"}, numerosAsignados)

		var reintentada models.Factura
		db.First(&reintentada, borradores[1].ID)
		assert.Equal(t, models.EstadoEnviada, reintentada.Estado)
		assert.Empty(t, reintentada.NotaError)
	})
}

func TestAprobarFacturasValidaciones(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupTestDB()
	e := crearEscenario(db)
	handler := newTestHandler(db, &MockFiscalClient{})
	borradores := generarBorradores(t, db, e, handler)

	router := gin.New()
	router.POST("/facturas/aprobar", handler.AprobarFacturas)

	t.Run("Prefijo invalido", func(t *testing.T) {
		w := postJSON(router, "/facturas/aprobar", AprobarFacturasRequest{
			FacturaIDs:             []uint{borradores[0].ID},
			PrefijoSecuencia:       "001-001",
			NumeroSecuenciaInicial: 45,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Lote vacio", func(t *testing.T) {
		w := postJSON(router, "/facturas/aprobar", AprobarFacturasRequest{
			FacturaIDs:             []uint{},
			PrefijoSecuencia:       "001-001-",
			NumeroSecuenciaInicial: 45,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Lote excede el maximo", func(t *testing.T) {
		handler.config.MaxApprovalBatch = 1
		defer func() { handler.config.MaxApprovalBatch = 200 }()

		w := postJSON(router, "/facturas/aprobar", AprobarFacturasRequest{
			FacturaIDs:             []uint{borradores[0].ID, borradores[1].ID},
			PrefijoSecuencia:       "001-001-",
			NumeroSecuenciaInicial: 45,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAprobarFacturasSinCredencial(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupTestDB()
	e := crearEscenario(db)

	db.Model(&models.Proyecto{}).Where("id = ?", e.proyecto.ID).Update("fiscal_api_key", "")

	llamadas := 0
	mock := &MockFiscalClient{
		EmitirDocumentoFunc: func(apiKey string, doc *utils.DocumentoFiscal) (string, error) {
			llamadas++
			return "EXT-1", nil
		},
	}
	handler := newTestHandler(db, mock)
	borradores := generarBorradores(t, db, e, handler)

	router := gin.New()
	router.POST("/facturas/aprobar", handler.AprobarFacturas)

	w := postJSON(router, "/facturas/aprobar", AprobarFacturasRequest{
		FacturaIDs:             []uint{borradores[0].ID},
		PrefijoSecuencia:       "001-001-",
		NumeroSecuenciaInicial: 1,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp respuestaAprobacion
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, 0, resp.Aprobadas)
	assert.Equal(t, 1, resp.Errores)
	assert.Contains(t, resp.ErroresDetalle[0].Error, "credencial")
	// La precondición falla sin llamada de red.
	assert.Equal(t, 0, llamadas)
}

func TestEliminarFacturas(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupTestDB()
	e := crearEscenario(db)
	handler := newTestHandler(db, &MockFiscalClient{})
	borradores := generarBorradores(t, db, e, handler)
	assert.Len(t, borradores, 2)

	// Una factura ya enviada no se puede eliminar.
	db.Model(&models.Factura{}).Where("id = ?", borradores[1].ID).
		Updates(map[string]interface{}{"estado": models.EstadoEnviada, "documento_externo_id": "EXT-9"})

	router := gin.New()
	router.POST("/facturas/eliminar", handler.EliminarFacturas)

	t.Run("Rechaza el lote si alguna no es borrador", func(t *testing.T) {
		w := postJSON(router, "/facturas/eliminar", EliminarFacturasRequest{
			FacturaIDs: []uint{borradores[0].ID, borradores[1].ID},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), fmt.Sprintf("%d", borradores[1].ID))

		// Todo o nada: tampoco se eliminó el borrador válido.
		var cuantas int64
		db.Model(&models.Factura{}).Count(&cuantas)
		assert.Equal(t, int64(2), cuantas)
	})

	t.Run("Rechaza ids inexistentes", func(t *testing.T) {
		w := postJSON(router, "/facturas/eliminar", EliminarFacturasRequest{
			FacturaIDs: []uint{borradores[0].ID, 9999},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Elimina solo borradores", func(t *testing.T) {
		w := postJSON(router, "/facturas/eliminar", EliminarFacturasRequest{
			FacturaIDs: []uint{borradores[0].ID},
		})
		assert.Equal(t, http.StatusOK, w.Code)

		var factura models.Factura
		err := db.First(&factura, borradores[0].ID).Error
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})
}

func TestGetFactura(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupTestDB()
	e := crearEscenario(db)
	handler := newTestHandler(db, &MockFiscalClient{})
	borradores := generarBorradores(t, db, e, handler)

	router := gin.New()
	router.GET("/facturas/:id", handler.GetFactura)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("/facturas/%d", borradores[0].ID), nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ALICUOTA")

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/facturas/9999", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
