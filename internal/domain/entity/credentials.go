package entity

// Credentials credenciales de acceso al portal e-Kuatia de la SET.
// Se reciben por llamada y se descartan al terminar: el núcleo nunca las
// persiste ni las cachea.
type Credentials struct {
	RUC          string // RUC del contribuyente, sin dígito verificador
	AccessKey    string // clave de acceso al portal
	EmissionMode string // etiqueta fija de modo de emisión (ej. "ekuatia-i")
}

// Valid comprobación mínima antes de intentar autenticar.
func (c Credentials) Valid() bool {
	return c.RUC != "" && c.AccessKey != ""
}
