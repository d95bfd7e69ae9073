package mpesa

const (
	ResponseCodeSuccess = "0"
	ResponseCodeUnknown = "999"
)

var responseCodes = map[string]string{
	"0":   "Success",
	"1":   "Insufficient Funds",
	"2":   "Less Than Minimum Transaction Value",
	"3":   "More Than Maximum Transaction Value",
	"4":   "Would Exceed Daily Transfer Limit",
	"5":   "Would Exceed Minimum Balance",
	"6":   "Unresolved Primary Party",
	"7":   "Unresolved Receiver Party",
	"8":   "Would Exceed Maximum Balance",
	"11":  "Debit Account Invalid",
	"12":  "Credit Account Invalid",
	"13":  "Unresolved Debit Account",
	"14":  "Unresolved Credit Account",
	"15":  "Duplicate Detected",
	"17":  "Internal Failure",
	"20":  "Unresolved Initiator",
	"26":  "Traffic blocking condition in place",
	"999": "Unknown code",
}

// NormalizeResponseCode maps codes outside the documented table to 999.
func NormalizeResponseCode(code string) string {
	if _, ok := responseCodes[code]; !ok {
		return ResponseCodeUnknown
	}

	return code
}

func ResponseCodeDescription(code string) string {
	return responseCodes[NormalizeResponseCode(code)]
}

// describeResponse keeps the provider's description and falls back to the
// documented one for the code.
func describeResponse(code string, description string) string {
	if description != "" {
		return description
	}

	return ResponseCodeDescription(code)
}
