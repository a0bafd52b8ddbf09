package remote

import (
	"regexp"
	"strings"

	"kila/internal"
)

var (
	reIncoterm     = regexp.MustCompile(`Invalid Incoterm: must be one of \[(.*?)\]`)
	reFieldError   = regexp.MustCompile(`Field '([^']+)' (.+)`)
	reMissingField = regexp.MustCompile(`(?i)Missing required field[s]?: ([^.\n]+)`)
	reBadFormat    = regexp.MustCompile(`Invalid format for ([^:]+): (.+)`)
	reValueError   = regexp.MustCompile(`Value error, (.+?)\.`)
	reQuotedField  = regexp.MustCompile(`'([^']+)'`)
)

// ParseServerError extracts structured findings from a free-text failure
// returned by the external validator. Patterns are tried in a fixed
// precedence order; if nothing matches, the raw string comes back as a single
// generic finding, so the caller always gets at least one.
func ParseServerError(errorMessage string) []internal.Finding {
	var findings []internal.Finding

	if m := reIncoterm.FindStringSubmatch(errorMessage); m != nil {
		findings = append(findings, remoteFinding("Incoterm",
			"Incoterm inválido. Debe ser uno de: "+strings.ReplaceAll(m[1], "'", ""),
			"Información de Transporte"))
	}

	if m := reFieldError.FindStringSubmatch(errorMessage); m != nil {
		findings = append(findings, remoteFinding(m[1], m[2], "Datos de Factura"))
	}

	if m := reMissingField.FindStringSubmatch(errorMessage); m != nil {
		for _, field := range strings.Split(m[1], ",") {
			field = strings.Trim(strings.TrimSpace(field), `'"`)
			if field == "" {
				continue
			}
			findings = append(findings, remoteFinding(field,
				"Campo requerido faltante", "Datos de Factura"))
		}
	}

	if m := reBadFormat.FindStringSubmatch(errorMessage); m != nil {
		findings = append(findings, remoteFinding(strings.TrimSpace(m[1]),
			"Formato inválido: "+m[2], "Datos de Factura"))
	}

	if len(findings) == 0 {
		if m := reValueError.FindStringSubmatch(errorMessage); m != nil {
			field := "Desconocido"
			if q := reQuotedField.FindStringSubmatch(errorMessage); q != nil {
				field = q[1]
			}
			findings = append(findings, remoteFinding(field, m[1], "Validación General"))
		}
	}

	if len(findings) == 0 && strings.Contains(errorMessage, "validation error") {
		findings = append(findings, remoteFinding("JSON",
			"Error de validación en el formato del JSON", "Estructura del Documento"))
	}

	if len(findings) == 0 {
		findings = append(findings, remoteFinding("General", errorMessage, "Validación"))
	}

	return findings
}

func remoteFinding(field, message, section string) internal.Finding {
	return internal.Finding{
		Field:    field,
		Message:  message,
		Section:  section,
		Severity: internal.SeverityError,
	}
}
