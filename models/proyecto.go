package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Proyecto agrupa propiedades y guarda la credencial del proveedor fiscal.
type Proyecto struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Nombre       string `gorm:"size:255;not null" json:"nombre"`
	FiscalAPIKey string `gorm:"size:255" json:"-"`
}

// TableName overrides the table name
func (Proyecto) TableName() string {
	return "proyectos"
}

// Servicio es un concepto facturable (alícuota, parqueadero, agua, etc.).
type Servicio struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Codigo string `gorm:"uniqueIndex;size:50;not null" json:"codigo"`
	Nombre string `gorm:"size:255;not null" json:"nombre"`

	TarifaBase   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"tarifa_base"`
	TasaImpuesto decimal.Decimal `gorm:"type:decimal(6,4);default:0" json:"tasa_impuesto"` // fracción, p.ej. 0.12

	// UnidadArea: la tarifa se multiplica por m². TipoArea restringe el
	// servicio a un subtipo de área desglosada; sin ese desglose la
	// propiedad no es elegible (no se usa el área total como respaldo).
	UnidadArea bool   `gorm:"default:false" json:"unidad_area"`
	TipoArea   string `gorm:"size:50" json:"tipo_area"`

	// FacturarAPropietario ignora el tipo_pagador de la propiedad.
	FacturarAPropietario bool `gorm:"default:false" json:"facturar_a_propietario"`

	// FiltroIdentificador restringe el servicio a propiedades cuyo
	// identificador jerárquico contiene esta palabra clave.
	FiltroIdentificador string `gorm:"size:100" json:"filtro_identificador"`

	// Identificador del producto en el proveedor fiscal; puede faltar.
	ProductoExternoID string `gorm:"size:100" json:"producto_externo_id"`
}

// TableName overrides the table name
func (Servicio) TableName() string {
	return "servicios"
}
