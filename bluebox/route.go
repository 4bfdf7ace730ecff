package bluebox

// Kind is the handler variant a request is routed to.
type Kind uint8

// Handler variants.
const (
	KindUnknown Kind = iota
	KindRawRegister
	KindModeSwitch
	KindField
	KindStub
	KindBootloader
)

func (k Kind) String() string {
	switch k {
	case KindRawRegister:
		return "raw-register"
	case KindModeSwitch:
		return "mode-switch"
	case KindField:
		return "field"
	case KindStub:
		return "stub"
	case KindBootloader:
		return "bootloader"
	default:
		return "unknown"
	}
}

// Handler is an entry of the route table. Field is set only for KindField.
type Handler struct {
	Kind  Kind
	Field Field
}

// Width returns the data-stage width the handler expects.
func (h Handler) Width() int {
	switch h.Kind {
	case KindRawRegister:
		return 4
	case KindField:
		return h.Field.Width()
	default:
		return 0
	}
}

type routeKey struct {
	op  Opcode
	dir Direction
}

var routes = map[routeKey]Handler{
	{OpRegister, DirOut}:   {Kind: KindRawRegister},
	{OpRegister, DirIn}:    {Kind: KindRawRegister},
	{OpFrequency, DirOut}:  {Kind: KindField, Field: FieldFreq},
	{OpFrequency, DirIn}:   {Kind: KindField, Field: FieldFreq},
	{OpModIndex, DirOut}:   {Kind: KindField, Field: FieldModIndex},
	{OpModIndex, DirIn}:    {Kind: KindField, Field: FieldModIndex},
	{OpCSMARSSI, DirOut}:   {Kind: KindField, Field: FieldCSMARSSI},
	{OpCSMARSSI, DirIn}:    {Kind: KindField, Field: FieldCSMARSSI},
	{OpPower, DirOut}:      {Kind: KindField, Field: FieldPASetting},
	{OpPower, DirIn}:       {Kind: KindField, Field: FieldPASetting},
	{OpAFC, DirOut}:        {Kind: KindField, Field: FieldAFCEnable},
	{OpAFC, DirIn}:         {Kind: KindField, Field: FieldAFCEnable},
	{OpIFBW, DirOut}:       {Kind: KindField, Field: FieldIFBW},
	{OpIFBW, DirIn}:        {Kind: KindField, Field: FieldIFBW},
	{OpTraining, DirOut}:   {Kind: KindStub},
	{OpTraining, DirIn}:    {Kind: KindStub},
	{OpSyncWord, DirOut}:   {Kind: KindStub},
	{OpSyncWord, DirIn}:    {Kind: KindStub},
	{OpRxTxMode, DirOut}:   {Kind: KindModeSwitch},
	{OpBootloader, DirOut}: {Kind: KindBootloader},
}

// Route looks up the handler for an opcode and direction.
func Route(op Opcode, dir Direction) (Handler, bool) {
	h, ok := routes[routeKey{op, dir}]
	return h, ok
}

// FieldOpcode returns the opcode that reads and writes a field.
func FieldOpcode(f Field) (Opcode, bool) {
	for key, h := range routes {
		if h.Kind == KindField && h.Field == f {
			return key.op, true
		}
	}
	return 0, false
}
