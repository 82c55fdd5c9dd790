// Package issuer contiene los catálogos del contrato de la autoridad emisora de certificados
// y las tablas de correspondencia con el vocabulario del Registry.
// Las claves de las tablas de origen están normalizadas (mayúsculas, sin acentos ni espacios).
package issuer

// =============================================================================
// Códigos de estado de la respuesta del Issuer.
// 0 = éxito; los negativos son rechazos de negocio (no transitorios).
// =============================================================================

const (
	StatusOK = 0

	StatusInvalidCompany      = -1
	StatusInvalidGenre        = -2
	StatusInvalidCategory     = -3
	StatusInvalidUsage        = -4
	StatusInvalidEnergy       = -5
	StatusDuplicate           = -6
	StatusDateOrder           = -7
	StatusDateInPast          = -8
	StatusMissingField        = -9
	StatusInvalidRegistration = -10
	StatusInvalidAmount       = -11
	StatusAuthFailed          = -12
	StatusQuotaExhausted      = -13
	StatusRateLimited         = -14
	StatusUnknownRequest      = -15
	StatusAlreadyTransferred  = -16
	StatusStateNotAllowed     = -17
	StatusInternal            = -99
)

// StatusMessages mensajes legibles, 1:1 con los códigos negativos del Issuer.
var StatusMessages = map[int]string{
	StatusInvalidCompany:      "código de compañía inválido o no habilitado",
	StatusInvalidGenre:        "género de vehículo inválido",
	StatusInvalidCategory:     "categoría de vehículo inválida",
	StatusInvalidUsage:        "uso de vehículo inválido",
	StatusInvalidEnergy:       "fuente de energía inválida",
	StatusDuplicate:           "ya existe un certificado para este vehículo en el período solicitado",
	StatusDateOrder:           "la fecha de efecto es posterior a la fecha de vencimiento",
	StatusDateInPast:          "la fecha de efecto es anterior a la fecha permitida",
	StatusMissingField:        "falta un campo obligatorio en la solicitud",
	StatusInvalidRegistration: "número de matrícula inválido",
	StatusInvalidAmount:       "monto de prima inválido",
	StatusAuthFailed:          "autenticación rechazada por el Issuer",
	StatusQuotaExhausted:      "cupo de certificados agotado para la compañía",
	StatusRateLimited:         "límite de solicitudes excedido",
	StatusUnknownRequest:      "número de solicitud desconocido",
	StatusAlreadyTransferred:  "el certificado ya fue transferido al asegurado",
	StatusStateNotAllowed:     "operación no permitida en el estado actual del certificado",
	StatusInternal:            "error interno del Issuer",
}

// StatusMessage devuelve el mensaje del código; desconocidos tienen un texto genérico.
func StatusMessage(code int) string {
	if msg, ok := StatusMessages[code]; ok {
		return msg
	}
	return "rechazo del Issuer con código no catalogado"
}

// NeedsOperatorReview códigos que pueden deberse a un envío anterior que sí prosperó
// (p. ej. timeout con éxito real en el Issuer). No se reintentan; se marcan para revisión.
var NeedsOperatorReview = map[int]bool{
	StatusDuplicate: true,
}

// =============================================================================
// Montos fijos
// =============================================================================

// CardFee costo fijo de la tarjeta (moneda local, unidades enteras).
const CardFee int64 = 5000

// =============================================================================
// Género de vehículo (Registry tipo de vehículo -> Issuer género)
// =============================================================================

const (
	GenreTourism    = "GV01" // Turismo / particular
	GenreUtility    = "GV02" // Utilitario
	GenreTruck      = "GV03" // Camión
	GenreTractor    = "GV04" // Tractor de carretera
	GenreTwoWheeler = "GV05" // Dos ruedas
	GenreBus        = "GV06" // Autobús
	GenreTrailer    = "GV07" // Remolque
	GenreMachine    = "GV08" // Maquinaria

	DefaultGenre = GenreTourism
)

// GenreByVehicleType correspondencia Registry -> Issuer.
var GenreByVehicleType = map[string]string{
	"VP":       GenreTourism,
	"TOURISME": GenreTourism,
	"VU":       GenreUtility,
	"CAM":      GenreTruck,
	"CAMION":   GenreTruck,
	"TRR":      GenreTractor,
	"MOTO":     GenreTwoWheeler,
	"CYCLO":    GenreTwoWheeler,
	"BUS":      GenreBus,
	"CAR":      GenreBus,
	"REM":      GenreTrailer,
	"ENG":      GenreMachine,
}

// =============================================================================
// Categoría tarifaria
// =============================================================================

const (
	CategoryPersonal      = "01" // Paseo y negocios (particular)
	CategoryOwnAccount    = "02" // Transporte por cuenta propia
	CategoryPublicGoods   = "03" // Transporte público de mercancías
	CategoryPublicPersons = "04" // Transporte público de personas
	CategoryTwoWheeler    = "05" // Dos ruedas
	CategorySpecial       = "06" // Vehículos especiales / maquinaria

	// DefaultCategory un tipo de vehículo desconocido se trata como particular.
	DefaultCategory = CategoryPersonal
)

// CategoryByRegistryCode categorías que el Registry ya informa con su propio código.
var CategoryByRegistryCode = map[string]string{
	"CAT1": CategoryPersonal,
	"CAT2": CategoryOwnAccount,
	"CAT3": CategoryPublicGoods,
	"CAT4": CategoryPublicPersons,
	"CAT5": CategoryTwoWheeler,
	"CAT6": CategorySpecial,
}

// CategoryByVehicleType respaldo cuando el Registry no informa categoría.
var CategoryByVehicleType = map[string]string{
	"VP":       CategoryPersonal,
	"TOURISME": CategoryPersonal,
	"VU":       CategoryOwnAccount,
	"CAM":      CategoryOwnAccount,
	"CAMION":   CategoryOwnAccount,
	"REM":      CategoryOwnAccount,
	"TRR":      CategoryPublicGoods,
	"BUS":      CategoryPublicPersons,
	"CAR":      CategoryPublicPersons,
	"MOTO":     CategoryTwoWheeler,
	"CYCLO":    CategoryTwoWheeler,
	"ENG":      CategorySpecial,
}

// =============================================================================
// Uso del vehículo
// =============================================================================

const (
	UsagePersonal      = "UV01"
	UsageBusiness      = "UV02"
	UsageCommercial    = "UV03"
	UsageTaxi          = "UV04"
	UsagePublicPersons = "UV05"
	UsagePublicGoods   = "UV06"
	UsageRental        = "UV07"
	UsageDrivingSchool = "UV08"

	DefaultUsage = UsagePersonal
)

var UsageByRegistryCode = map[string]string{
	"PRIVE":            UsagePersonal,
	"PERSONNEL":        UsagePersonal,
	"AFFAIRES":         UsageBusiness,
	"COMMERCIAL":       UsageCommercial,
	"PROPRE_COMPTE":    UsageCommercial,
	"TAXI":             UsageTaxi,
	"TAXI_COMMUNAL":    UsageTaxi,
	"VTC":              UsageTaxi,
	"TPC":              UsagePublicPersons,
	"TRANSPORT_PUBLIC": UsagePublicPersons,
	"TPM":              UsagePublicGoods,
	"LOCATION":         UsageRental,
	"AUTO_ECOLE":       UsageDrivingSchool,
}

// =============================================================================
// Color del certificado (precedencia por uso: taxi > comercial > público > particular)
// =============================================================================

const (
	ColourTaxi       = "JAUNE"
	ColourCommercial = "BLEUE"
	ColourPublic     = "ROUGE"
	ColourPersonal   = "VERTE"
)

// TaxiUsages, CommercialUsages y PublicUsages aceptan tanto códigos Registry como códigos Issuer.
var TaxiUsages = map[string]bool{
	"TAXI": true, "TAXI_COMMUNAL": true, "VTC": true, UsageTaxi: true,
}

var CommercialUsages = map[string]bool{
	"COMMERCIAL": true, "PROPRE_COMPTE": true, "LOCATION": true, "TPM": true,
	UsageCommercial: true, UsageRental: true, UsagePublicGoods: true,
}

var PublicUsages = map[string]bool{
	"TPC": true, "TRANSPORT_PUBLIC": true, "AUTO_ECOLE": true,
	UsagePublicPersons: true, UsageDrivingSchool: true,
}

// =============================================================================
// Fuente de energía
// =============================================================================

const (
	EnergyPetrol   = "SEES"
	EnergyDiesel   = "SEDI"
	EnergyHybrid   = "SEHY"
	EnergyElectric = "SEEL"
	EnergyLPG      = "SEGP"

	DefaultEnergy = EnergyPetrol
)

var EnergyByRegistryCode = map[string]string{
	"ESSENCE":    EnergyPetrol,
	"ES":         EnergyPetrol,
	"GASOIL":     EnergyDiesel,
	"DIESEL":     EnergyDiesel,
	"GO":         EnergyDiesel,
	"HYBRIDE":    EnergyHybrid,
	"ELECTRIQUE": EnergyElectric,
	"GPL":        EnergyLPG,
}

// =============================================================================
// Profesión del suscriptor
// =============================================================================

const (
	ProfessionCivilServant = "PR01"
	ProfessionTrader       = "PR02"
	ProfessionEmployee     = "PR03"
	ProfessionLiberal      = "PR04"
	ProfessionFarmer       = "PR05"
	ProfessionStudent      = "PR06"
	ProfessionRetired      = "PR07"
	ProfessionUnemployed   = "PR08"
	ProfessionOther        = "PR99"

	DefaultProfession = ProfessionOther
)

var ProfessionByRegistryCode = map[string]string{
	"FONCTIONNAIRE":       ProfessionCivilServant,
	"COMMERCANT":          ProfessionTrader,
	"SALARIE":             ProfessionEmployee,
	"PROFESSION_LIBERALE": ProfessionLiberal,
	"LIBERAL":             ProfessionLiberal,
	"AGRICULTEUR":         ProfessionFarmer,
	"ETUDIANT":            ProfessionStudent,
	"RETRAITE":            ProfessionRetired,
	"SANS_EMPLOI":         ProfessionUnemployed,
}

// =============================================================================
// Acciones de actualización de estado
// =============================================================================

const (
	ActionCancel  = "CANCEL"
	ActionSuspend = "SUSPEND"
)

// =============================================================================
// Variantes de enlaces de descarga (misma base, distinto formato)
// =============================================================================

const (
	LinkPDF    = "PDF"
	LinkImage  = "IMAGE"
	LinkQRCode = "QRCODE"
)
