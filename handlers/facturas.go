package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/yourusername/predios-api/billing"
	"github.com/yourusername/predios-api/config"
	"github.com/yourusername/predios-api/models"
	"github.com/yourusername/predios-api/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FacturacionHandler concentra los flujos de facturación: generación de
// borradores, aprobación contra el proveedor fiscal, eliminación y la
// verificación de cobros (cobros.go).
type FacturacionHandler struct {
	db           *gorm.DB
	config       *config.Config
	fiscalClient utils.FiscalClientInterface
	logger       *zap.Logger
}

func NewFacturacionHandler(db *gorm.DB, cfg *config.Config, fiscalClient utils.FiscalClientInterface, logger *zap.Logger) *FacturacionHandler {
	return &FacturacionHandler{
		db:           db,
		config:       cfg,
		fiscalClient: fiscalClient,
		logger:       logger,
	}
}

type GenerarFacturasRequest struct {
	ProyectoID     uint   `json:"proyectoId" binding:"required"`
	ServicioID     uint   `json:"servicioId" binding:"required"`
	Periodo        string `json:"periodo" binding:"required"`
	PropiedadesIDs []uint `json:"propiedadesIds"`
}

type DetalleErrorGeneracion struct {
	PropiedadID uint   `json:"propiedadId"`
	Error       string `json:"error"`
}

// GenerarFacturas crea facturas en borrador para las propiedades del
// proyecto elegibles para un servicio y período. Una propiedad que falla no
// detiene a las demás.
func (h *FacturacionHandler) GenerarFacturas(c *gin.Context) {
	var req GenerarFacturasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := time.Parse("2006-01", req.Periodo); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Periodo inválido, se espera YYYY-MM"})
		return
	}

	var servicio models.Servicio
	if err := h.db.First(&servicio, req.ServicioID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Servicio no encontrado"})
		return
	}

	query := h.db.Where("proyecto_id = ?", req.ProyectoID).
		Preload("AreasDesglosadas").
		Preload("Propietario").
		Preload("Ocupante")
	if len(req.PropiedadesIDs) > 0 {
		query = query.Where("id IN ?", req.PropiedadesIDs)
	}

	var propiedades []models.Propiedad
	if err := query.Find(&propiedades).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudieron consultar las propiedades"})
		return
	}
	if len(propiedades) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No se encontraron propiedades para el proyecto"})
		return
	}

	generadas, omitidas := 0, 0
	detalles := []DetalleErrorGeneracion{}

	for i := range propiedades {
		propiedad := &propiedades[i]
		creada, err := h.generarFactura(propiedad, &servicio, req.Periodo)
		if err != nil {
			detalles = append(detalles, DetalleErrorGeneracion{PropiedadID: propiedad.ID, Error: err.Error()})
			h.logger.Warn("error generando factura",
				zap.Uint("propiedad_id", propiedad.ID),
				zap.String("periodo", req.Periodo),
				zap.Error(err))
			continue
		}
		if creada {
			generadas++
		} else {
			omitidas++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"generadas":      generadas,
		"omitidas":       omitidas,
		"errores":        len(detalles),
		"erroresDetalle": detalles,
	})
}

// generarFactura procesa una propiedad. Devuelve (false, nil) cuando la
// propiedad se omite: filtro de elegibilidad, pagador no facturable, área
// requerida ausente o borrador duplicado.
func (h *FacturacionHandler) generarFactura(propiedad *models.Propiedad, servicio *models.Servicio, periodo string) (bool, error) {
	if servicio.FiltroIdentificador != "" &&
		!strings.Contains(strings.ToUpper(propiedad.Identificador), strings.ToUpper(servicio.FiltroIdentificador)) {
		return false, nil
	}

	pagador, err := propiedad.Pagador(servicio.FacturarAPropietario)
	if err != nil {
		return false, err
	}
	if pagador == nil {
		return false, nil
	}

	cfg, err := h.resolverConfiguracion(propiedad.ID, pagador.ID, servicio.ID)
	if err != nil {
		return false, err
	}

	tarifa := billing.ResolverTarifa(propiedad, servicio, cfg)
	if tarifa.UsaArea && tarifa.Cantidad.IsZero() {
		// Servicio restringido a un subtipo de área que la propiedad no tiene.
		return false, nil
	}

	duplicada, err := h.existeBorrador(propiedad.ID, periodo, servicio.Codigo)
	if err != nil {
		return false, err
	}
	if duplicada {
		return false, nil
	}

	subtotal := tarifa.PrecioUnitario.Mul(tarifa.Cantidad).Round(2)
	impuesto := decimal.Zero
	if !tarifa.TasaImpuesto.IsZero() {
		impuesto = subtotal.Mul(tarifa.TasaImpuesto).Round(2)
	}
	total := subtotal.Add(impuesto)

	factura := models.Factura{
		Periodo:     periodo,
		Subtotal:    subtotal,
		Impuesto:    impuesto,
		Total:       total,
		Estado:      models.EstadoBorrador,
		PropiedadID: propiedad.ID,
		ClienteID:   pagador.ID,
		Items: []models.FacturaItem{{
			Descripcion:       servicio.Nombre,
			CodigoServicio:    servicio.Codigo,
			Cantidad:          tarifa.Cantidad,
			PrecioUnitario:    tarifa.PrecioUnitario,
			TasaImpuesto:      tarifa.TasaImpuesto,
			ProductoExternoID: servicio.ProductoExternoID,
		}},
	}

	if err := h.db.Create(&factura).Error; err != nil {
		return false, fmt.Errorf("no se pudo guardar la factura: %w", err)
	}
	return true, nil
}

// resolverConfiguracion busca la configuración de cobro: primero la
// específica del servicio, luego la genérica; nil cuando no hay ninguna.
func (h *FacturacionHandler) resolverConfiguracion(propiedadID, clienteID, servicioID uint) (*models.ConfiguracionCobro, error) {
	var cfg models.ConfiguracionCobro
	err := h.db.Where("propiedad_id = ? AND cliente_id = ? AND servicio_id = ?", propiedadID, clienteID, servicioID).
		First(&cfg).Error
	if err == nil {
		return &cfg, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = h.db.Where("propiedad_id = ? AND cliente_id = ? AND servicio_id IS NULL", propiedadID, clienteID).
		First(&cfg).Error
	if err == nil {
		return &cfg, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return nil, nil
}

func (h *FacturacionHandler) existeBorrador(propiedadID uint, periodo, codigoServicio string) (bool, error) {
	var count int64
	err := h.db.Model(&models.Factura{}).
		Joins("JOIN factura_items ON factura_items.factura_id = facturas.id").
		Where("facturas.propiedad_id = ? AND facturas.periodo = ? AND facturas.estado = ? AND factura_items.codigo_servicio = ?",
			propiedadID, periodo, models.EstadoBorrador, codigoServicio).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

type AprobarFacturasRequest struct {
	FacturaIDs             []uint `json:"facturaIds" binding:"required,min=1"`
	PrefijoSecuencia       string `json:"prefijoSecuencia" binding:"required"`
	NumeroSecuenciaInicial int64  `json:"numeroSecuenciaInicial" binding:"required,gt=0"`
}

type DetalleErrorAprobacion struct {
	FacturaID uint   `json:"facturaId"`
	Error     string `json:"error"`
}

// AprobarFacturas emite un lote de borradores ante el proveedor fiscal.
// Las facturas que no existen o no están en borrador se excluyen en
// silencio. El número de secuencia avanza también en las emisiones
// fallidas; una factura fallida queda en borrador con la nota de error y el
// lote continúa.
func (h *FacturacionHandler) AprobarFacturas(c *gin.Context) {
	var req AprobarFacturasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	secuencia, err := billing.NuevaSecuencia(req.PrefijoSecuencia, req.NumeroSecuenciaInicial)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if len(req.FacturaIDs) > h.config.MaxApprovalBatch {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("El lote excede el máximo de %d facturas", h.config.MaxApprovalBatch),
		})
		return
	}

	var facturas []models.Factura
	if err := h.db.Where("id IN ? AND estado = ?", req.FacturaIDs, models.EstadoBorrador).
		Preload("Items").
		Preload("Cliente").
		Preload("Propiedad").
		Preload("Propiedad.Proyecto").
		Order("facturas.id").
		Find(&facturas).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudieron consultar las facturas"})
		return
	}

	aprobadas := 0
	detalles := []DetalleErrorAprobacion{}

	for i := range facturas {
		factura := &facturas[i]
		numero := secuencia.Siguiente()

		externoID, err := h.emitirFactura(factura, numero)
		if err != nil {
			detalles = append(detalles, DetalleErrorAprobacion{FacturaID: factura.ID, Error: err.Error()})
			h.logger.Warn("emisión de factura fallida",
				zap.Uint("factura_id", factura.ID),
				zap.String("numero_documento", numero),
				zap.Error(err))
			// La nota queda en la factura para el operador; sigue en borrador.
			h.db.Model(factura).Update("nota_error", err.Error())
			continue
		}

		ahora := time.Now()
		if err := h.db.Model(factura).Updates(map[string]interface{}{
			"estado":               models.EstadoEnviada,
			"numero_documento":     numero,
			"documento_externo_id": externoID,
			"fecha_aprobacion":     ahora,
			"nota_error":           "",
		}).Error; err != nil {
			detalles = append(detalles, DetalleErrorAprobacion{FacturaID: factura.ID, Error: err.Error()})
			continue
		}
		aprobadas++
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"aprobadas":      aprobadas,
		"errores":        len(detalles),
		"erroresDetalle": detalles,
	})
}

// emitirFactura valida las precondiciones del item y llama al proveedor.
func (h *FacturacionHandler) emitirFactura(factura *models.Factura, numeroDocumento string) (string, error) {
	apiKey := factura.Propiedad.Proyecto.FiscalAPIKey
	if apiKey == "" {
		return "", fmt.Errorf("el proyecto %d no tiene credencial del proveedor fiscal", factura.Propiedad.ProyectoID)
	}

	for _, item := range factura.Items {
		if item.ProductoExternoID == "" {
			h.logger.Warn("servicio sin producto en el proveedor fiscal, se usa el genérico",
				zap.Uint("factura_id", factura.ID),
				zap.String("codigo_servicio", item.CodigoServicio))
		}
	}

	doc, err := utils.BuildDocumentoFiscal(factura, numeroDocumento, time.Now())
	if err != nil {
		return "", err
	}
	return h.fiscalClient.EmitirDocumento(apiKey, doc)
}

type EliminarFacturasRequest struct {
	FacturaIDs []uint `json:"facturaIds" binding:"required,min=1"`
}

// EliminarFacturas borra facturas en borrador. La validación es todo o
// nada: si algún id no corresponde a un borrador no se elimina ninguna.
func (h *FacturacionHandler) EliminarFacturas(c *gin.Context) {
	var req EliminarFacturasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var facturas []models.Factura
	if err := h.db.Where("id IN ?", req.FacturaIDs).Find(&facturas).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudieron consultar las facturas"})
		return
	}

	borradores := make(map[uint]bool, len(facturas))
	for _, f := range facturas {
		if f.Estado == models.EstadoBorrador {
			borradores[f.ID] = true
		}
	}

	var invalidas []uint
	for _, id := range req.FacturaIDs {
		if !borradores[id] {
			invalidas = append(invalidas, id)
		}
	}
	if len(invalidas) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "Solo se pueden eliminar facturas en estado borrador",
			"facturaIds": invalidas,
		})
		return
	}

	if err := h.db.Where("factura_id IN ?", req.FacturaIDs).Delete(&models.FacturaItem{}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudieron eliminar los detalles"})
		return
	}
	if err := h.db.Delete(&models.Factura{}, req.FacturaIDs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudieron eliminar las facturas"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "eliminadas": len(req.FacturaIDs)})
}

// ListFacturas lista facturas con filtros opcionales por proyecto, período
// y estado.
func (h *FacturacionHandler) ListFacturas(c *gin.Context) {
	query := h.db.Preload("Items")

	if periodo := c.Query("periodo"); periodo != "" {
		query = query.Where("facturas.periodo = ?", periodo)
	}
	if estado := c.Query("estado"); estado != "" {
		query = query.Where("facturas.estado = ?", estado)
	}
	if proyectoID := c.Query("proyecto_id"); proyectoID != "" {
		query = query.Joins("JOIN propiedades ON propiedades.id = facturas.propiedad_id").
			Where("propiedades.proyecto_id = ?", proyectoID)
	}

	var facturas []models.Factura
	if err := query.Order("facturas.id desc").Find(&facturas).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudieron consultar las facturas"})
		return
	}

	c.JSON(http.StatusOK, facturas)
}

func (h *FacturacionHandler) GetFactura(c *gin.Context) {
	id := c.Param("id")
	var factura models.Factura

	if err := h.db.Preload("Items").Preload("Cliente").Preload("Propiedad").First(&factura, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Factura no encontrada"})
		return
	}

	c.JSON(http.StatusOK, factura)
}

type RegistrarComprobanteRequest struct {
	ComprobantePago string `json:"comprobantePago" binding:"required"`
}

// RegistrarComprobante adjunta la referencia del comprobante de pago; una
// factura pagada pasa a pagada_comprobante.
func (h *FacturacionHandler) RegistrarComprobante(c *gin.Context) {
	var req RegistrarComprobanteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	var factura models.Factura
	if err := h.db.First(&factura, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Factura no encontrada"})
		return
	}

	if factura.Estado == models.EstadoBorrador {
		c.JSON(http.StatusBadRequest, gin.H{"error": "La factura aún no ha sido enviada"})
		return
	}

	factura.ComprobantePago = req.ComprobantePago
	if factura.Estado == models.EstadoPagada {
		factura.Estado = models.EstadoPagadaComprobante
	}

	if err := h.db.Save(&factura).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo actualizar la factura"})
		return
	}

	c.JSON(http.StatusOK, factura)
}
