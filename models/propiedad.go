package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Roles de pagador configurables por propiedad.
const (
	PagadorPropietario = "propietario"
	PagadorOcupante    = "ocupante"
)

// Propiedad es una unidad facturable dentro de un proyecto.
type Propiedad struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	ProyectoID uint     `gorm:"not null;index" json:"proyecto_id"`
	Proyecto   Proyecto `gorm:"foreignKey:ProyectoID" json:"proyecto,omitempty"`

	// Etiqueta jerárquica, p.ej. "TORRE A / PISO 2 / DPTO 201".
	Identificador string  `gorm:"size:255;not null" json:"identificador"`
	AreaTotal     float64 `gorm:"not null" json:"area_total"`

	AreasDesglosadas []AreaDesglosada `gorm:"foreignKey:PropiedadID" json:"areas_desglosadas,omitempty"`

	TipoPagador   string   `gorm:"size:20;default:'propietario'" json:"tipo_pagador"` // propietario, ocupante
	PropietarioID *uint    `json:"propietario_id,omitempty"`
	Propietario   *Cliente `gorm:"foreignKey:PropietarioID" json:"propietario,omitempty"`
	OcupanteID    *uint    `json:"ocupante_id,omitempty"`
	Ocupante      *Cliente `gorm:"foreignKey:OcupanteID" json:"ocupante,omitempty"`

	// Lote agrupado: la cuota viene precalculada y no se deriva de área × tarifa.
	LoteAgrupado  bool            `gorm:"default:false" json:"lote_agrupado"`
	CuotaAgrupada decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"cuota_agrupada"`
}

// TableName overrides the table name
func (Propiedad) TableName() string {
	return "propiedades"
}

// Pagador resuelve el cliente responsable de las facturas de la propiedad.
// forzarPropietario aplica para servicios que siempre se facturan al dueño.
// Devuelve nil (sin error) cuando el rol configurado no tiene cliente
// vinculado o el cliente es externo: la propiedad se omite, no es un error.
func (p *Propiedad) Pagador(forzarPropietario bool) (*Cliente, error) {
	rol := p.TipoPagador
	if forzarPropietario {
		rol = PagadorPropietario
	}

	var cliente *Cliente
	switch rol {
	case PagadorPropietario:
		cliente = p.Propietario
	case PagadorOcupante:
		cliente = p.Ocupante
	default:
		return nil, fmt.Errorf("propiedad %d: tipo_pagador desconocido %q", p.ID, p.TipoPagador)
	}

	if cliente == nil || cliente.Externo {
		return nil, nil
	}
	return cliente, nil
}

// AreaPorTipo busca un área desglosada por subtipo. ok=false cuando la
// propiedad no tiene desglose para ese subtipo.
func (p *Propiedad) AreaPorTipo(tipo string) (float64, bool) {
	for _, a := range p.AreasDesglosadas {
		if a.Tipo == tipo {
			return a.Area, true
		}
	}
	return 0, false
}

// AreaDesglosada es una porción del área de la propiedad por subtipo
// (p.ej. util, parqueadero, bodega).
type AreaDesglosada struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	PropiedadID uint    `gorm:"not null;index" json:"propiedad_id"`
	Tipo        string  `gorm:"size:50;not null" json:"tipo"`
	Area        float64 `gorm:"not null" json:"area"`
}

// TableName overrides the table name
func (AreaDesglosada) TableName() string {
	return "areas_desglosadas"
}
