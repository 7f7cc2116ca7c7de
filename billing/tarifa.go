package billing

import (
	"github.com/shopspring/decimal"
	"github.com/yourusername/predios-api/models"
)

// TarifaResultado es la cantidad y el precio efectivos de un servicio para
// una propiedad. Cantidad cero con UsaArea indica que la propiedad no es
// elegible para un servicio restringido a un subtipo de área: el llamador
// debe omitirla, no facturar sobre el área total.
type TarifaResultado struct {
	PrecioUnitario decimal.Decimal
	Cantidad       decimal.Decimal
	TasaImpuesto   decimal.Decimal
	UsaArea        bool
}

var (
	uno  = decimal.NewFromInt(1)
	cero = decimal.Zero
)

// ResolverTarifa calcula cantidad, precio unitario y tasa de impuesto para
// una propiedad y un servicio, aplicando la configuración de cobro resuelta
// (puede ser nil). Los montos salen redondeados a 2 decimales.
func ResolverTarifa(p *models.Propiedad, s *models.Servicio, cfg *models.ConfiguracionCobro) TarifaResultado {
	if p.LoteAgrupado {
		return resolverLoteAgrupado(p, s, cfg)
	}

	res := TarifaResultado{PrecioUnitario: s.TarifaBase.Round(2), Cantidad: uno}

	switch {
	case s.TipoArea != "":
		res.UsaArea = true
		area, ok := p.AreaPorTipo(s.TipoArea)
		if !ok {
			// Sin desglose del subtipo requerido la propiedad no es elegible.
			res.Cantidad = cero
			return res
		}
		res.Cantidad = decimal.NewFromFloat(area)
	case s.UnidadArea:
		res.UsaArea = true
		res.Cantidad = decimal.NewFromFloat(p.AreaTotal)
	}

	res.TasaImpuesto = s.TasaImpuesto
	aplicarConfiguracion(&res, cfg, false)
	return res
}

// resolverLoteAgrupado fuerza cantidad 1 y la cuota precalculada del lote;
// el impuesto queda en cero salvo que la configuración lo habilite.
func resolverLoteAgrupado(p *models.Propiedad, s *models.Servicio, cfg *models.ConfiguracionCobro) TarifaResultado {
	res := TarifaResultado{
		PrecioUnitario: p.CuotaAgrupada.Round(2),
		Cantidad:       uno,
		TasaImpuesto:   cero,
	}
	aplicarConfiguracion(&res, cfg, true)
	if res.TasaImpuesto.IsZero() && cfg != nil && cfg.AplicaImpuesto != nil && *cfg.AplicaImpuesto && cfg.TasaImpuesto == nil {
		res.TasaImpuesto = s.TasaImpuesto
	}
	return res
}

// aplicarConfiguracion sobrepone precio especial y/o impuesto de una
// configuración de cobro. Con soloImpuestoExplicito el impuesto solo cambia
// si la configuración lo habilita expresamente (caso lote agrupado).
func aplicarConfiguracion(res *TarifaResultado, cfg *models.ConfiguracionCobro, soloImpuestoExplicito bool) {
	if cfg == nil {
		return
	}

	if cfg.PrecioEspecial != nil {
		res.PrecioUnitario = cfg.PrecioEspecial.Round(2)
	}

	if cfg.AplicaImpuesto != nil && !*cfg.AplicaImpuesto {
		res.TasaImpuesto = cero
		return
	}
	if soloImpuestoExplicito && (cfg.AplicaImpuesto == nil || !*cfg.AplicaImpuesto) {
		return
	}
	if cfg.TasaImpuesto != nil {
		res.TasaImpuesto = NormalizarTasa(*cfg.TasaImpuesto)
	}
}

// NormalizarTasa convierte tasas cargadas como porcentaje entero (p.ej. 12)
// a fracción (0.12). Valores ya fraccionarios pasan sin cambio.
func NormalizarTasa(tasa float64) decimal.Decimal {
	d := decimal.NewFromFloat(tasa)
	if d.GreaterThan(uno) {
		return d.Div(decimal.NewFromInt(100))
	}
	return d
}
