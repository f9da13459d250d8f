package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/fenilmodi00/ipo-allotment/models"
	"github.com/fenilmodi00/ipo-allotment/shared"
)

const bigshareBaseURL = "https://ipo.bigshareonline.com"

// BigshareAdapter checks allotments through the Bigshare JSON endpoint
type BigshareAdapter struct {
	BaseRegistrarAdapter
}

// NewBigshareAdapter creates a Bigshare adapter
func NewBigshareAdapter(opts AdapterOptions) *BigshareAdapter {
	return &BigshareAdapter{
		BaseRegistrarAdapter: newBaseRegistrarAdapter(models.RegistrarBigshare, bigshareBaseURL, opts),
	}
}

type bigshareQuery struct {
	ApplicationNo string `json:"Applicationno"`
	Company       string `json:"Company"`
	SelectionType string `json:"SelectionType"`
	PanNo         string `json:"PanNo"`
	DPID          string `json:"txtDPID"`
	ClientID      string `json:"txtClId"`
	DdlType       string `json:"ddlType"`
}

type bigshareRecord struct {
	ApplicationNo string `json:"APPLICATION_NO"`
	Applied       string `json:"APPLIED"`
	Allotted      string `json:"ALLOTED"`
	AmountBlocked string `json:"AMOUNT_BLOCKED"`
	RefundAmount  string `json:"REFUND_AMOUNT"`
	DPID          string `json:"DPID"`
	ClientID      string `json:"CLIENTID"`
	Message       string `json:"Message"`
}

type bigshareEnvelope struct {
	D *bigshareRecord `json:"d"`
}

func (a *BigshareAdapter) CheckAllotment(ctx context.Context, params models.AllotmentCheckParams) (result models.AllotmentResult) {
	if invalid, ok := a.validateInput(params); !ok {
		return invalid
	}
	defer a.recoverToError(params, &result)

	body, err := json.Marshal(bigshareQuery{
		ApplicationNo: params.ApplicationNumber,
		Company:       params.RegistrarCompanyCode(),
		SelectionType: "PN",
		PanNo:         params.PAN,
		DdlType:       "0",
	})
	if err != nil {
		return a.errorResult(params, err, "")
	}

	response, err := a.post(ctx, "/Data.aspx/FetchIpodetails", "application/json; charset=utf-8", body, nil)
	if err != nil {
		raw := ""
		if response != nil {
			raw = string(response.Body)
		}
		return a.errorResult(params, err, raw)
	}

	raw := string(response.Body)
	var envelope bigshareEnvelope
	if err := json.Unmarshal(response.Body, &envelope); err != nil {
		return a.errorResult(params, shared.WrapError(err, shared.ErrorCategoryProcessing, shared.CodeParseFailure, string(a.registrar), "decode", false), raw)
	}

	return a.fromRecord(params, envelope.D, raw)
}

func (a *BigshareAdapter) fromRecord(params models.AllotmentCheckParams, record *bigshareRecord, raw string) models.AllotmentResult {
	if record == nil || strings.TrimSpace(record.ApplicationNo) == "" && strings.TrimSpace(record.Allotted) == "" {
		if status, ok := a.ClassifyOutcome(recordMessage(record)); ok && status != models.StatusAllotted {
			result := a.newResult(params, status, "")
			if status == models.StatusInvalidDetails {
				result.Message = recordNotFoundMessage
			}
			result.RawData = raw
			return result
		}
		result := a.newResult(params, models.StatusInvalidDetails, recordNotFoundMessage)
		result.RawData = raw
		return result
	}

	var result models.AllotmentResult
	if shares, ok := a.utility.ParseIndianNumber(record.Allotted); ok {
		if shares > 0 {
			result = a.allottedResult(params, shares, a.ParseAmount(record.AmountBlocked), a.ParseAmount(record.RefundAmount))
		} else {
			result = a.newResult(params, models.StatusNotAllotted, "")
		}
	} else if status, ok := a.ClassifyOutcome(record.Allotted + " " + record.Message); ok {
		if status == models.StatusAllotted {
			result = a.allottedResult(params, 0, a.ParseAmount(record.AmountBlocked), a.ParseAmount(record.RefundAmount))
		} else {
			result = a.newResult(params, status, "")
		}
	} else {
		return a.errorResult(params, shared.NewServiceError(shared.ErrorCategoryProcessing, shared.CodeParseFailure,
			"unrecognised allotment value", string(a.registrar), "parse", false, nil), raw)
	}

	if appNo := strings.TrimSpace(record.ApplicationNo); appNo != "" {
		result.ApplicationNumber = appNo
	}
	result.DPID = strings.TrimSpace(record.DPID)
	result.ClientID = strings.TrimSpace(record.ClientID)
	result.RawData = raw
	return result
}

func recordMessage(record *bigshareRecord) string {
	if record == nil {
		return ""
	}
	return record.Message
}
