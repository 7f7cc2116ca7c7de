package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Tipos de persona de un cliente.
const (
	PersonaNatural  = "natural"
	PersonaJuridica = "juridica"
)

// Roles de contacto de un cliente.
const (
	ContactoGerente       = "gerente"
	ContactoAdministrador = "administrador"
	ContactoProveedor     = "proveedor"
	ContactoAcceso        = "acceso"
)

// Cliente es un pagador: persona natural (cédula) o jurídica (RUC, con
// representante opcional que puede ser a su vez una persona jurídica).
type Cliente struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	TipoPersona string `gorm:"size:20;not null" json:"tipo_persona"` // natural, juridica

	// Persona natural
	Cedula  string `gorm:"size:20" json:"cedula,omitempty"`
	Nombres string `gorm:"size:255" json:"nombres,omitempty"`

	// Persona jurídica
	RUC             string   `gorm:"size:20" json:"ruc,omitempty"`
	RazonSocial     string   `gorm:"size:255" json:"razon_social,omitempty"`
	RepresentanteID *uint    `json:"representante_id,omitempty"`
	Representante   *Cliente `gorm:"foreignKey:RepresentanteID" json:"representante,omitempty"`

	Email     string     `gorm:"size:255" json:"email"`
	Direccion string     `gorm:"size:500" json:"direccion"`
	Externo   bool       `gorm:"default:false" json:"externo"`
	Contactos []Contacto `gorm:"foreignKey:ClienteID" json:"contactos,omitempty"`
}

// TableName overrides the table name
func (Cliente) TableName() string {
	return "clientes"
}

// Identificacion devuelve la identificación fiscal según el tipo de persona.
// Los consumidores deben tratar el error como "cliente no facturable".
func (c *Cliente) Identificacion() (string, error) {
	switch c.TipoPersona {
	case PersonaNatural:
		if c.Cedula == "" {
			return "", fmt.Errorf("cliente %d: persona natural sin cédula", c.ID)
		}
		return c.Cedula, nil
	case PersonaJuridica:
		if c.RUC == "" {
			return "", fmt.Errorf("cliente %d: persona jurídica sin RUC", c.ID)
		}
		return c.RUC, nil
	default:
		return "", fmt.Errorf("cliente %d: tipo_persona desconocido %q", c.ID, c.TipoPersona)
	}
}

// NombreFiscal devuelve el nombre a reportar al proveedor fiscal.
func (c *Cliente) NombreFiscal() string {
	switch c.TipoPersona {
	case PersonaJuridica:
		return c.RazonSocial
	default:
		return c.Nombres
	}
}

// Contacto es uno de los hasta cuatro contactos de rol de un cliente.
type Contacto struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	ClienteID uint   `gorm:"not null;index" json:"cliente_id"`
	Rol       string `gorm:"size:20;not null" json:"rol"` // gerente, administrador, proveedor, acceso
	Nombre    string `gorm:"size:255" json:"nombre"`
	Telefono  string `gorm:"size:30" json:"telefono"`
	Email     string `gorm:"size:255" json:"email"`
}

// TableName overrides the table name
func (Contacto) TableName() string {
	return "contactos"
}
