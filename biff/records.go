package biff

import "fmt"

// RecordType is the 16-bit record identifier at the start of every record.
type RecordType uint16

// Record types referenced by this package, with their MS-XLS section
// numbers (2.3/2.4).
// https://docs.microsoft.com/en-us/openspecs/office_file_formats/ms-xls/43684742-8fcd-4fcd-92df-157d8d7241f9
const (
	RecTypeFormula         RecordType = 0x0006 // section 2.4.127
	RecTypeEOF             RecordType = 0x000A // section 2.4.103
	RecTypeProtect         RecordType = 0x0012 // section 2.4.207
	RecTypePassword        RecordType = 0x0013 // section 2.4.191
	RecTypeHeader          RecordType = 0x0014 // section 2.4.136
	RecTypeFooter          RecordType = 0x0015 // section 2.4.124
	RecTypeExternSheet     RecordType = 0x0017 // section 2.4.106
	RecTypeLbl             RecordType = 0x0018 // section 2.4.150
	RecTypeNote            RecordType = 0x001C // section 2.4.179
	RecTypeDate1904        RecordType = 0x0022 // section 2.4.77
	RecTypeFilePass        RecordType = 0x002F // section 2.4.117
	RecTypeFont            RecordType = 0x0031 // section 2.4.122
	RecTypeContinue        RecordType = 0x003C // section 2.4.58
	RecTypeWindow1         RecordType = 0x003D // section 2.4.345
	RecTypeCodePage        RecordType = 0x0042 // section 2.4.52
	RecTypeDefColWidth     RecordType = 0x0055 // section 2.4.89
	RecTypeWriteAccess     RecordType = 0x005C // section 2.4.349
	RecTypeObj             RecordType = 0x005D // section 2.4.181
	RecTypeColInfo         RecordType = 0x007D // section 2.4.53
	RecTypeBoundSheet8     RecordType = 0x0085 // section 2.4.28
	RecTypeCountry         RecordType = 0x008C // section 2.4.63
	RecTypePalette         RecordType = 0x0092 // section 2.4.188
	RecTypeMulRk           RecordType = 0x00BD // section 2.4.175
	RecTypeMulBlank        RecordType = 0x00BE // section 2.4.174
	RecTypeMms             RecordType = 0x00C1 // section 2.4.169
	RecTypeDBCell          RecordType = 0x00D7 // section 2.4.78
	RecTypeXF              RecordType = 0x00E0 // section 2.4.353
	RecTypeInterfaceHdr    RecordType = 0x00E1 // section 2.4.146
	RecTypeInterfaceEnd    RecordType = 0x00E2 // section 2.4.145
	RecTypeMergeCells      RecordType = 0x00E5 // section 2.4.168
	RecTypeMsoDrawingGroup RecordType = 0x00EB // section 2.4.171
	RecTypeMsoDrawing      RecordType = 0x00EC // section 2.4.170
	RecTypeSST             RecordType = 0x00FC // section 2.4.265
	RecTypeLabelSst        RecordType = 0x00FD // section 2.4.149
	RecTypeExtSST          RecordType = 0x00FF // section 2.4.107
	RecTypeRRDHead         RecordType = 0x0138 // section 2.4.226
	RecTypeTabID           RecordType = 0x013D // section 2.4.321
	RecTypeUsrExcl         RecordType = 0x0194 // section 2.4.339
	RecTypeFileLock        RecordType = 0x0195 // section 2.4.116
	RecTypeRRDInfo         RecordType = 0x0196 // section 2.4.227
	RecTypeSupBook         RecordType = 0x01AE // section 2.4.271
	RecTypeTxO             RecordType = 0x01B6 // section 2.4.329
	RecTypeHLink           RecordType = 0x01B8 // section 2.4.140
	RecTypeDimensions      RecordType = 0x0200 // section 2.4.90
	RecTypeBlank           RecordType = 0x0201 // section 2.4.20
	RecTypeNumber          RecordType = 0x0203 // section 2.4.180
	RecTypeLabel           RecordType = 0x0204 // section 2.4.148
	RecTypeBoolErr         RecordType = 0x0205 // section 2.4.24
	RecTypeString          RecordType = 0x0207 // section 2.4.268
	RecTypeRow             RecordType = 0x0208 // section 2.4.221
	RecTypeIndex           RecordType = 0x020B // section 2.4.144
	RecTypeArray           RecordType = 0x0221 // section 2.4.4
	RecTypeWindow2         RecordType = 0x023E // section 2.4.346
	RecTypeRK              RecordType = 0x027E // section 2.4.220
	RecTypeStyle           RecordType = 0x0293 // section 2.4.269
	RecTypeFormat          RecordType = 0x041E // section 2.4.126
	RecTypeShrFmla         RecordType = 0x04BC // section 2.4.260
	RecTypeBOF             RecordType = 0x0809 // section 2.4.21
)

const (
	// MaxRecordDataSize is the largest payload of a single record frame.
	MaxRecordDataSize = 8224

	// HeaderSize is the size of the type and size fields preceding every payload.
	HeaderSize = 4
)

var recordNames = map[RecordType]string{
	RecTypeFormula:         "Formula",
	RecTypeEOF:             "EOF",
	RecTypeProtect:         "Protect",
	RecTypePassword:        "Password",
	RecTypeHeader:          "Header",
	RecTypeFooter:          "Footer",
	RecTypeExternSheet:     "ExternSheet",
	RecTypeLbl:             "Lbl",
	RecTypeNote:            "Note",
	RecTypeDate1904:        "Date1904",
	RecTypeFilePass:        "FilePass",
	RecTypeFont:            "Font",
	RecTypeContinue:        "Continue",
	RecTypeWindow1:         "Window1",
	RecTypeCodePage:        "CodePage",
	RecTypeDefColWidth:     "DefColWidth",
	RecTypeWriteAccess:     "WriteAccess",
	RecTypeObj:             "Obj",
	RecTypeColInfo:         "ColInfo",
	RecTypeBoundSheet8:     "BoundSheet8",
	RecTypeCountry:         "Country",
	RecTypePalette:         "Palette",
	RecTypeMulRk:           "MulRk",
	RecTypeMulBlank:        "MulBlank",
	RecTypeMms:             "Mms",
	RecTypeDBCell:          "DBCell",
	RecTypeXF:              "XF",
	RecTypeInterfaceHdr:    "InterfaceHdr",
	RecTypeInterfaceEnd:    "InterfaceEnd",
	RecTypeMergeCells:      "MergeCells",
	RecTypeMsoDrawingGroup: "MsoDrawingGroup",
	RecTypeMsoDrawing:      "MsoDrawing",
	RecTypeSST:             "SST",
	RecTypeLabelSst:        "LabelSst",
	RecTypeExtSST:          "ExtSST",
	RecTypeRRDHead:         "RRDHead",
	RecTypeTabID:           "TabID",
	RecTypeUsrExcl:         "UsrExcl",
	RecTypeFileLock:        "FileLock",
	RecTypeRRDInfo:         "RRDInfo",
	RecTypeSupBook:         "SupBook",
	RecTypeTxO:             "TxO",
	RecTypeHLink:           "HLink",
	RecTypeDimensions:      "Dimensions",
	RecTypeBlank:           "Blank",
	RecTypeNumber:          "Number",
	RecTypeLabel:           "Label",
	RecTypeBoolErr:         "BoolErr",
	RecTypeString:          "String",
	RecTypeRow:             "Row",
	RecTypeIndex:           "Index",
	RecTypeArray:           "Array",
	RecTypeWindow2:         "Window2",
	RecTypeRK:              "RK",
	RecTypeStyle:           "Style",
	RecTypeFormat:          "Format",
	RecTypeShrFmla:         "ShrFmla",
	RecTypeBOF:             "BOF",
}

func (r RecordType) String() string {
	if name, ok := recordNames[r]; ok {
		return fmt.Sprintf("%s (%d)", name, uint16(r))
	}
	return fmt.Sprintf("Unknown (%d)", uint16(r))
}
