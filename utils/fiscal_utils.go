package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yourusername/predios-api/models"
)

// ProductoGenericoID se reporta al proveedor cuando el servicio no tiene
// producto registrado; la emisión no se bloquea por eso.
const ProductoGenericoID = "PROD-GENERICO"

const maxDescripcion = 300

type FiscalClientInterface interface {
	EmitirDocumento(apiKey string, doc *DocumentoFiscal) (string, error)
	ListarCobros(apiKey, documentoID string) ([]CobroExterno, error)
}

// FiscalClient habla con el API REST del proveedor de facturación
// electrónica usando la credencial del proyecto como bearer token.
type FiscalClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewFiscalClient(baseURL string, timeout time.Duration) FiscalClientInterface {
	return &FiscalClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// DocumentoFiscal es el payload de emisión del proveedor.
type DocumentoFiscal struct {
	TipoDocumento string          `json:"tipo_documento"`
	Documento     string          `json:"documento"`
	FechaEmision  string          `json:"fecha_emision"` // DD/MM/YYYY
	Descripcion   string          `json:"descripcion"`
	Cliente       ClienteFiscal   `json:"cliente"`
	Detalles      []DetalleFiscal `json:"detalles"`

	// Los montos se copian tal cual de la factura local; nunca se
	// recalculan desde los detalles para no introducir deriva de redondeo.
	Subtotal0       decimal.Decimal `json:"subtotal_0"`
	SubtotalGravado decimal.Decimal `json:"subtotal_gravado"`
	Impuesto        decimal.Decimal `json:"iva"`
	Total           decimal.Decimal `json:"total"`
}

type ClienteFiscal struct {
	Identificacion string `json:"identificacion"`
	TipoPersona    string `json:"tipo_persona"`
	RazonSocial    string `json:"razon_social"`
	Email          string `json:"email,omitempty"`
	Direccion      string `json:"direccion,omitempty"`
}

type DetalleFiscal struct {
	ProductoID    string          `json:"producto_id"`
	Descripcion   string          `json:"descripcion"`
	Cantidad      decimal.Decimal `json:"cantidad"`
	Precio        decimal.Decimal `json:"precio"`
	PorcentajeIVA decimal.Decimal `json:"porcentaje_iva"`
}

// CobroExterno es un registro de recaudación reportado por el proveedor.
type CobroExterno struct {
	ID           string  `json:"id"`
	Monto        float64 `json:"monto"`
	FormaCobro   string  `json:"forma_cobro"`
	Fecha        string  `json:"fecha"`
	NumeroCheque string  `json:"numero_cheque,omitempty"`
}

// BuildDocumentoFiscal arma el payload de emisión para una factura en
// borrador (con propiedad, cliente e items precargados) y su número fiscal.
// Un error aquí es un fallo inmediato del item, sin llamada de red.
func BuildDocumentoFiscal(f *models.Factura, numeroDocumento string, fecha time.Time) (*DocumentoFiscal, error) {
	if len(f.Items) == 0 {
		return nil, fmt.Errorf("factura %d: sin detalle facturable", f.ID)
	}

	identificacion, err := f.Cliente.Identificacion()
	if err != nil {
		return nil, err
	}

	doc := &DocumentoFiscal{
		TipoDocumento: "FAC",
		Documento:     numeroDocumento,
		FechaEmision:  fecha.Format("02/01/2006"),
		Cliente: ClienteFiscal{
			Identificacion: identificacion,
			TipoPersona:    f.Cliente.TipoPersona,
			RazonSocial:    f.Cliente.NombreFiscal(),
			Email:          f.Cliente.Email,
			Direccion:      f.Cliente.Direccion,
		},
		Impuesto: f.Impuesto,
		Total:    f.Total,
	}

	gravada := false
	for _, item := range f.Items {
		productoID := item.ProductoExternoID
		if productoID == "" {
			productoID = ProductoGenericoID
		}
		if !item.TasaImpuesto.IsZero() {
			gravada = true
		}
		doc.Detalles = append(doc.Detalles, DetalleFiscal{
			ProductoID:    productoID,
			Descripcion:   item.Descripcion,
			Cantidad:      item.Cantidad,
			Precio:        item.PrecioUnitario,
			PorcentajeIVA: item.TasaImpuesto,
		})
	}

	// Base cero o base gravada según la tasa de la factura.
	if gravada {
		doc.SubtotalGravado = f.Subtotal
	} else {
		doc.Subtotal0 = f.Subtotal
	}

	descripcion := fmt.Sprintf("%s %s - %s", f.Items[0].Descripcion, FormatearPeriodo(f.Periodo), f.Propiedad.Identificador)
	doc.Descripcion = truncar(descripcion, maxDescripcion)

	return doc, nil
}

// EmitirDocumento envía el documento al proveedor. Toda falla se devuelve
// como error; nada se propaga como pánico ni se reintenta.
func (c *FiscalClient) EmitirDocumento(apiKey string, doc *DocumentoFiscal) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("error preparando la solicitud: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/documento", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("error preparando la solicitud: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("no se recibió respuesta del proveedor: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("el proveedor respondió %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("respuesta inválida del proveedor: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("respuesta del proveedor sin id de documento")
	}
	return out.ID, nil
}

// ListarCobros consulta las recaudaciones registradas contra un documento.
func (c *FiscalClient) ListarCobros(apiKey, documentoID string) ([]CobroExterno, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/documento/%s/cobro", c.baseURL, documentoID), nil)
	if err != nil {
		return nil, fmt.Errorf("error preparando la solicitud: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("no se recibió respuesta del proveedor: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("el proveedor respondió %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var cobros []CobroExterno
	if err := json.Unmarshal(respBody, &cobros); err != nil {
		return nil, fmt.Errorf("respuesta inválida del proveedor: %w", err)
	}
	return cobros, nil
}

var mesesES = [...]string{
	"ENERO", "FEBRERO", "MARZO", "ABRIL", "MAYO", "JUNIO",
	"JULIO", "AGOSTO", "SEPTIEMBRE", "OCTUBRE", "NOVIEMBRE", "DICIEMBRE",
}

// FormatearPeriodo convierte "2026-03" en "MARZO 2026". Un período que no
// parsea se devuelve tal cual.
func FormatearPeriodo(periodo string) string {
	t, err := time.Parse("2006-01", periodo)
	if err != nil {
		return periodo
	}
	return fmt.Sprintf("%s %d", mesesES[t.Month()-1], t.Year())
}

// ParseFechaCobro interpreta la fecha de un cobro del proveedor. Acepta
// DD/MM/YYYY o variantes ISO; una fecha inválida cae al valor de respaldo.
func ParseFechaCobro(fecha string, respaldo time.Time) time.Time {
	layouts := []string{"02/01/2006", time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, fecha); err == nil {
			return t
		}
	}
	return respaldo
}

var formasCobro = map[string]string{
	"CHQ": models.FormaCheque,
	"TRA": models.FormaTransferencia,
	"EFE": models.FormaEfectivo,
	"TAR": models.FormaTarjeta,
}

// MapearFormaCobro traduce el código del proveedor a la enumeración local.
// Códigos no mapeados caen a transferencia.
func MapearFormaCobro(codigo string) string {
	if forma, ok := formasCobro[strings.ToUpper(strings.TrimSpace(codigo))]; ok {
		return forma
	}
	return models.FormaTransferencia
}

func truncar(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
