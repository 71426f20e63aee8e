package sifen

import (
	"encoding/xml"

	"github.com/tu-usuario/facturador-pro/internal/domain"
)

// ── Estructuras SOAP ──────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName xml.Name   `xml:"s:Envelope"`
	XmlnsS  string     `xml:"xmlns:s,attr"`
	Header  soapHeader `xml:"s:Header"`
	Body    soapBody   `xml:"s:Body"`
}

type soapHeader struct {
	Token string `xml:"dToken,omitempty"`
}

type soapBody struct {
	Content interface{}
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "s:Body"
	e.EncodeToken(start)
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

// ── Cuerpos de request ────────────────────────────────────────────────────────

// rAutenticacion solicita sesión con las credenciales del contribuyente.
type rAutenticacion struct {
	XMLName      xml.Name `xml:"rAutenticacion"`
	Xmlns        string   `xml:"xmlns,attr"`
	DRUC         string   `xml:"dRUC"`
	DClaveAcceso string   `xml:"dClaveAcceso"`
	DModEmision  string   `xml:"dModEmision"`
}

// rConsultaConfig consulta la configuración del emisor registrada en la SET.
type rConsultaConfig struct {
	XMLName xml.Name `xml:"rConsultaConfig"`
	Xmlns   string   `xml:"xmlns,attr"`
	DRUC    string   `xml:"dRUC"`
}

// rRegistroConfig alta/actualización de la configuración del emisor.
type rRegistroConfig struct {
	XMLName      xml.Name `xml:"rRegistroConfig"`
	Xmlns        string   `xml:"xmlns,attr"`
	DRUC         string   `xml:"dRUC"`
	DNumTim      string   `xml:"dNumTim"`
	DEst         int      `xml:"dEst"`
	DPunExp      int      `xml:"dPunExp"`
	ITiDE        string   `xml:"iTiDE"`
	CActEco      string   `xml:"cActEco"`
	DFeIniT      string   `xml:"dFeIniT"` // yyyy-MM-dd
	ITipCont     string   `xml:"iTipCont"`
	DCSC         string   `xml:"dCSC"`
	DURLLogo     string   `xml:"dURLLogo,omitempty"`
	BModAvanzado bool     `xml:"bModAvanzado"`
}

// rEnvioDE envío de un documento electrónico para emisión.
type rEnvioDE struct {
	XMLName  xml.Name       `xml:"rEnvioDE"`
	Xmlns    string         `xml:"xmlns,attr"`
	DRUCEm   string         `xml:"dRUCEm"`
	DNumTim  string         `xml:"dNumTim"`
	DEst     int            `xml:"dEst"`
	DPunExp  int            `xml:"dPunExp"`
	ITiDE    string         `xml:"iTiDE"`
	DFeEmiDE string         `xml:"dFeEmiDE"` // yyyy-MM-ddTHH:mm:ss
	GDatRec  gDatosReceptor `xml:"gDatRec"`
	GDtipDE  []gItemDE      `xml:"gDtipDE>gCamItem"`
	GTotSub  gTotales       `xml:"gTotSub"`
}

type gDatosReceptor struct {
	DRUCRec   string `xml:"dRUCRec"`
	DNomRec   string `xml:"dNomRec"`
	DEmailRec string `xml:"dEmailRec,omitempty"`
}

type gItemDE struct {
	DCodInt     string `xml:"dCodInt"`
	DDesProSer  string `xml:"dDesProSer"`
	DCantProSer string `xml:"dCantProSer"`
	DPUniProSer string `xml:"dPUniProSer"`
	DLiqIVAItem string `xml:"dLiqIVAItem"`
	DTotOpeItem string `xml:"dTotOpeItem"`
}

type gTotales struct {
	DSub        string `xml:"dSub"`
	DTotIVA     string `xml:"dTotIVA"`
	DTotGralOpe string `xml:"dTotGralOpe"`
}

// ── Estructuras de respuesta ──────────────────────────────────────────────────

type soapResponseEnvelope struct {
	Body soapResponseBody `xml:"Body"`
}

type soapResponseBody struct {
	AuthResponse   *rAutenticacionRes  `xml:"rResAutenticacion"`
	ConfigResponse *rConsultaConfigRes `xml:"rResConsultaConfig"`
	SaveResponse   *rRegistroConfigRes `xml:"rResRegistroConfig"`
	SubmitResponse *rEnvioDERes        `xml:"rResEnvioDE"`
	Fault          *soapFault          `xml:"Fault"`
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// rAutenticacionRes sesión + perfil del contribuyente.
type rAutenticacionRes struct {
	DCodRes string     `xml:"dCodRes"`
	DMsgRes string     `xml:"dMsgRes"`
	DToken  string     `xml:"dToken"`
	GPerfil gPerfilRes `xml:"gPerfil"`
}

type gPerfilRes struct {
	DRUC       string `xml:"dRUC"`
	DNomEmi    string `xml:"dNomEmi"`
	DEstadoRUC string `xml:"dEstadoRUC"`
	CActEco    string `xml:"cActEco"`
	DDesActEco string `xml:"dDesActEco"`
	ITipCont   string `xml:"iTipCont"`
	DFeAprob   string `xml:"dFeAprob"` // yyyy-MM-dd
	DCSC       string `xml:"dCSC"`
	DNumTim    string `xml:"dNumTim"`
	DFeIniT    string `xml:"dFeIniT"` // yyyy-MM-dd
	// GHistTiDE histograma de tipos de documento emitidos por el contribuyente.
	GHistTiDE []gHistTiDERes `xml:"gHistTiDE>gCamTiDE"`
}

type gHistTiDERes struct {
	ITiDE string `xml:"iTiDE"`
	DCant int    `xml:"dCant"`
}

// rConsultaConfigRes configuración vigente (dCodRes 0502 = sin configuración).
type rConsultaConfigRes struct {
	DCodRes string      `xml:"dCodRes"`
	DMsgRes string      `xml:"dMsgRes"`
	GConfig *gConfigRes `xml:"gConfig"`
}

type gConfigRes struct {
	DRUC         string `xml:"dRUC"`
	DNumTim      string `xml:"dNumTim"`
	DEst         int    `xml:"dEst"`
	DPunExp      int    `xml:"dPunExp"`
	ITiDE        string `xml:"iTiDE"`
	CActEco      string `xml:"cActEco"`
	DDesActEco   string `xml:"dDesActEco"`
	DFeIniT      string `xml:"dFeIniT"`
	ITipCont     string `xml:"iTipCont"`
	DCSC         string `xml:"dCSC"`
	DURLLogo     string `xml:"dURLLogo"`
	BModAvanzado bool   `xml:"bModAvanzado"`
}

type rRegistroConfigRes struct {
	DCodRes   string `xml:"dCodRes"`
	DMsgRes   string `xml:"dMsgRes"`
	DIdConfig string `xml:"dIdConfig"`
}

type rEnvioDERes struct {
	DCodRes  string `xml:"dCodRes"`
	DMsgRes  string `xml:"dMsgRes"`
	DNumDoc  string `xml:"dNumDoc"`  // número de documento asignado
	DCDC     string `xml:"Id"`       // CDC de 44 dígitos
	DFeEmiDE string `xml:"dFeEmiDE"` // fecha de emisión confirmada
}

// ── Mapeo de códigos de respuesta de la SET a la taxonomía del dominio ────────

// dCodRes "0260" es aprobación; todo lo demás se clasifica acá. Los códigos
// vienen del Manual Técnico SIFEN; los no catalogados caen a transporte
// reintentables solo cuando la SET los marca como transitorios.
const codRespuestaAprobada = "0260"

func mapResponseCode(code, msg string) *domain.Error {
	switch code {
	case "0160":
		return domain.AuthError(domain.CodeInvalidCredentials, msg, nil)
	case "0161":
		return domain.AuthError(domain.CodeEnrollmentPending, msg, nil)
	case "0162":
		return domain.AuthError(domain.CodeRUCInactive, msg, nil)
	case "0501":
		return domain.ConfigError(domain.CodeConstraintViolated, msg, nil)
	case "0503":
		return domain.ConfigError(domain.CodeMissingCertificate, msg, nil)
	case "0504":
		return domain.ConfigError(domain.CodeInvalidCSC, msg, nil)
	case "1001":
		return domain.ValidationError(domain.CodeInvalidReceiver, msg, nil)
	case "1002":
		return domain.ValidationError(domain.CodeNonPositiveAmount, msg, nil)
	case "1003":
		return domain.ValidationError(domain.CodeTotalsMismatch, msg, nil)
	case "1004":
		return domain.ValidationError(domain.CodeDuplicateDocument, msg, nil)
	case "1005":
		return domain.ValidationError(domain.CodeExpiredTimbrado, msg, nil)
	case "5001":
		return domain.TransportError(domain.CodeTimeout, msg, nil)
	case "5002":
		return domain.TransportError(domain.CodeUnavailable, msg, nil)
	case "5003":
		return domain.TransportError(domain.CodeRateLimited, msg, nil)
	default:
		// Código no catalogado: no reintentable hasta clasificarlo.
		return domain.RetrievalError(domain.CodeServiceUnreachable,
			"respuesta no catalogada de la SET ["+code+"]: "+msg, nil)
	}
}
