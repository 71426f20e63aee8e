package sifen

import (
	"fmt"
	"unicode"
)

// Algoritmo módulo 11 del dígito verificador del RUC paraguayo: los dígitos de
// la base se ponderan de derecha a izquierda con factores 2..11 y el DV es
// 11 - (suma % 11), con 0 cuando el resto es menor a 2.
const rucBaseMax = 11

// ComputeRUCVerificationDigit calcula el dígito verificador para la base del
// RUC (sin DV). Útil para completar el RUC del receptor antes del envío.
func ComputeRUCVerificationDigit(ruc string) (byte, error) {
	digits := extractDigits(ruc)
	if len(digits) == 0 {
		return 0, fmt.Errorf("sifen: RUC sin dígitos: %q", ruc)
	}
	var sum, factor = 0, 2
	for i := len(digits) - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * factor
		factor++
		if factor > rucBaseMax {
			factor = 2
		}
	}
	rest := sum % 11
	if rest < 2 {
		return '0', nil
	}
	return byte('0' + (11 - rest)), nil
}

// ValidateRUCVerificationDigit valida un RUC con DV ("80012345-6" o "800123456").
// El último dígito se interpreta como DV y el resto como base.
func ValidateRUCVerificationDigit(ruc string) error {
	digits := extractDigits(ruc)
	if len(digits) < 2 {
		return fmt.Errorf("sifen: RUC con DV requiere al menos 2 dígitos, se encontraron %d", len(digits))
	}
	base := string(digits[:len(digits)-1])
	expected, err := ComputeRUCVerificationDigit(base)
	if err != nil {
		return err
	}
	if got := digits[len(digits)-1]; got != expected {
		return fmt.Errorf("sifen: dígito verificador inválido: esperado %c, recibido %c", expected, got)
	}
	return nil
}

func extractDigits(s string) []byte {
	var out []byte
	for _, r := range s {
		if unicode.IsDigit(r) {
			out = append(out, byte(r))
		}
	}
	return out
}
