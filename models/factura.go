package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Estados de una factura.
const (
	EstadoBorrador          = "borrador"
	EstadoEnviada           = "enviada"
	EstadoParcial           = "parcial"
	EstadoPagada            = "pagada"
	EstadoPagadaComprobante = "pagada_comprobante"
)

// Factura es una obligación de cobro de una propiedad/cliente/período.
// Invariante: Subtotal + Impuesto = Total (redondeado a 2 decimales); los
// items no se modifican una vez que la factura sale de borrador.
type Factura struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Periodo string `gorm:"size:7;not null;index" json:"periodo"` // YYYY-MM

	Subtotal decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	Impuesto decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"impuesto"`
	Total    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`

	Estado string `gorm:"size:30;default:'borrador';index" json:"estado"`

	PropiedadID uint      `gorm:"not null;index" json:"propiedad_id"`
	Propiedad   Propiedad `gorm:"foreignKey:PropiedadID" json:"propiedad,omitempty"`
	ClienteID   uint      `gorm:"not null;index" json:"cliente_id"`
	Cliente     Cliente   `gorm:"foreignKey:ClienteID" json:"cliente,omitempty"`

	Items []FacturaItem `gorm:"foreignKey:FacturaID" json:"items,omitempty"`

	// Asignados por el flujo de aprobación.
	NumeroDocumento    string     `gorm:"size:30" json:"numero_documento"`
	DocumentoExternoID string     `gorm:"size:100;index" json:"documento_externo_id"`
	FechaAprobacion    *time.Time `json:"fecha_aprobacion,omitempty"`
	NotaError          string     `gorm:"type:text" json:"nota_error"`

	ComprobantePago string           `gorm:"size:500" json:"comprobante_pago"`
	Retencion       *decimal.Decimal `gorm:"type:decimal(12,2)" json:"retencion,omitempty"`
}

// TableName overrides the table name
func (Factura) TableName() string {
	return "facturas"
}

// FacturaItem es un detalle facturable dentro de una factura.
type FacturaItem struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	FacturaID uint `gorm:"not null;index" json:"factura_id"`

	Descripcion    string          `gorm:"size:500;not null" json:"descripcion"`
	CodigoServicio string          `gorm:"size:50;not null;index" json:"codigo_servicio"`
	Cantidad       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"cantidad"`
	PrecioUnitario decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"precio_unitario"`
	TasaImpuesto   decimal.Decimal `gorm:"type:decimal(6,4);default:0" json:"tasa_impuesto"`

	ProductoExternoID string `gorm:"size:100" json:"producto_externo_id"`
}

// TableName overrides the table name
func (FacturaItem) TableName() string {
	return "factura_items"
}
