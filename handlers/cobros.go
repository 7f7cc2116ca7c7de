package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/yourusername/predios-api/models"
	"github.com/yourusername/predios-api/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// VerificarCobros recorre todas las facturas ya enviadas al proveedor
// fiscal, trae sus recaudaciones, deduplica contra los cobros locales y
// recalcula el estado de pago. Una factura que falla se omite y el barrido
// continúa; el endpoint siempre responde con los contadores agregados.
func (h *FacturacionHandler) VerificarCobros(c *gin.Context) {
	var facturas []models.Factura
	if err := h.db.Where("estado <> ? AND documento_externo_id <> ''", models.EstadoBorrador).
		Preload("Propiedad").
		Preload("Propiedad.Proyecto").
		Find(&facturas).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudieron consultar las facturas"})
		return
	}

	procesadas, actualizadas, nuevos, omitidos := 0, 0, 0, 0

	for i := range facturas {
		factura := &facturas[i]
		resultado, err := h.verificarFactura(factura)
		if err != nil {
			h.logger.Error("no se pudieron verificar los cobros de la factura",
				zap.Uint("factura_id", factura.ID),
				zap.String("documento_externo_id", factura.DocumentoExternoID),
				zap.Error(err))
			continue
		}
		procesadas++
		nuevos += resultado.nuevos
		omitidos += resultado.omitidos
		if resultado.actualizada {
			actualizadas++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"mensaje":                  "Verificación de cobros completada",
		"facturas_procesadas":      procesadas,
		"facturas_actualizadas":    actualizadas,
		"nuevos_cobros_procesados": nuevos,
		"cobros_omitidos":          omitidos,
	})
}

type resultadoVerificacion struct {
	nuevos      int
	omitidos    int
	actualizada bool
}

func (h *FacturacionHandler) verificarFactura(factura *models.Factura) (resultadoVerificacion, error) {
	var res resultadoVerificacion

	apiKey := factura.Propiedad.Proyecto.FiscalAPIKey
	if apiKey == "" {
		return res, fmt.Errorf("el proyecto %d no tiene credencial del proveedor fiscal", factura.Propiedad.ProyectoID)
	}

	externos, err := h.fiscalClient.ListarCobros(apiKey, factura.DocumentoExternoID)
	if err != nil {
		return res, err
	}

	var registrados []models.Cobro
	if err := h.db.Where("factura_id = ?", factura.ID).Find(&registrados).Error; err != nil {
		return res, err
	}
	recaudado := decimal.Zero
	for _, cobro := range registrados {
		recaudado = recaudado.Add(cobro.Monto)
	}

	for _, externo := range externos {
		var existente models.Cobro
		lookupErr := h.db.Where("cobro_externo_id = ?", externo.ID).First(&existente).Error
		if lookupErr == nil {
			// Ya conciliado; no se vuelve a sumar.
			res.omitidos++
			continue
		}
		if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return res, lookupErr
		}

		cobro := models.Cobro{
			FacturaID:      factura.ID,
			Monto:          decimal.NewFromFloat(externo.Monto).Round(2),
			FormaCobro:     utils.MapearFormaCobro(externo.FormaCobro),
			Fecha:          utils.ParseFechaCobro(externo.Fecha, time.Now()),
			CobroExternoID: externo.ID,
			NumeroCheque:   externo.NumeroCheque,
		}
		if err := h.db.Create(&cobro).Error; err != nil {
			return res, fmt.Errorf("no se pudo registrar el cobro %s: %w", externo.ID, err)
		}
		recaudado = recaudado.Add(cobro.Monto)
		res.nuevos++
	}

	disponible := recaudado
	if factura.Retencion != nil {
		disponible = disponible.Add(*factura.Retencion)
	}

	nuevoEstado := factura.Estado
	switch {
	case disponible.GreaterThanOrEqual(factura.Total):
		nuevoEstado = models.EstadoPagada
		if factura.ComprobantePago != "" {
			nuevoEstado = models.EstadoPagadaComprobante
		}
	case disponible.GreaterThan(decimal.Zero):
		nuevoEstado = models.EstadoParcial
	}

	if nuevoEstado != factura.Estado {
		if err := h.db.Model(factura).Update("estado", nuevoEstado).Error; err != nil {
			return res, err
		}
		res.actualizada = true
	}
	return res, nil
}
