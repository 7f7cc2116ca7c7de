package billing

import (
	"fmt"
	"regexp"
)

// Formato del prefijo fiscal: establecimiento-punto de emisión, p.ej. "001-001-".
var prefijoSecuencia = regexp.MustCompile(`^\d{3}-\d{3}-$`)

const maxNumeroSecuencia = 999999999 // 9 dígitos

// ValidarSecuencia verifica el par prefijo/número inicial suministrado por el
// operador. Es la precondición de entrada del lote de aprobación; la validez
// contable del punto de partida es responsabilidad del llamador.
func ValidarSecuencia(prefijo string, inicial int64) error {
	if !prefijoSecuencia.MatchString(prefijo) {
		return fmt.Errorf("prefijo de secuencia inválido %q: se espera el formato 000-000-", prefijo)
	}
	if inicial <= 0 || inicial > maxNumeroSecuencia {
		return fmt.Errorf("número de secuencia inicial inválido %d: debe ser positivo de hasta 9 dígitos", inicial)
	}
	return nil
}

// Secuencia emite números de documento fiscal estrictamente crecientes para
// un solo lote de aprobación. No se persiste ni se reutiliza entre lotes.
type Secuencia struct {
	Prefijo string
	Actual  int64
}

// NuevaSecuencia valida y construye el contador del lote.
func NuevaSecuencia(prefijo string, inicial int64) (*Secuencia, error) {
	if err := ValidarSecuencia(prefijo, inicial); err != nil {
		return nil, err
	}
	return &Secuencia{Prefijo: prefijo, Actual: inicial}, nil
}

// Siguiente devuelve el número formateado y avanza el contador. El avance es
// incondicional: una emisión fallida también consume su número.
func (s *Secuencia) Siguiente() string {
	n := s.Actual
	s.Actual++
	return fmt.Sprintf("%s%09d", s.Prefijo, n)
}
