package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/fenilmodi00/ipo-allotment/models"
	"github.com/fenilmodi00/ipo-allotment/shared"
)

const linkIntimeBaseURL = "https://linkintime.co.in"

// LinkIntimeAdapter checks allotments on the Link Intime MIPO portal.
// The portal answers with an ASP.NET {"d": "<html>"} envelope; older pages return bare HTML.
type LinkIntimeAdapter struct {
	BaseRegistrarAdapter
}

// NewLinkIntimeAdapter creates a Link Intime adapter
func NewLinkIntimeAdapter(opts AdapterOptions) *LinkIntimeAdapter {
	return &LinkIntimeAdapter{
		BaseRegistrarAdapter: newBaseRegistrarAdapter(models.RegistrarLinkIntime, linkIntimeBaseURL, opts),
	}
}

type linkIntimeQuery struct {
	ClientID string `json:"clientid"`
	PAN      string `json:"PAN"`
	AppNo    string `json:"AppNo"`
	ChkVal   string `json:"CHKVAL"`
}

type aspNetEnvelope struct {
	D string `json:"d"`
}

func (a *LinkIntimeAdapter) CheckAllotment(ctx context.Context, params models.AllotmentCheckParams) (result models.AllotmentResult) {
	if invalid, ok := a.validateInput(params); !ok {
		return invalid
	}
	defer a.recoverToError(params, &result)

	body, err := json.Marshal(linkIntimeQuery{
		ClientID: params.RegistrarCompanyCode(),
		PAN:      params.PAN,
		AppNo:    params.ApplicationNumber,
		ChkVal:   "1",
	})
	if err != nil {
		return a.errorResult(params, err, "")
	}

	response, err := a.post(ctx, "/MIPO/IPO.aspx/SearchOnPan", "application/json; charset=utf-8", body, nil)
	if err != nil {
		raw := ""
		if response != nil {
			raw = string(response.Body)
		}
		return a.errorResult(params, err, raw)
	}

	markup := string(response.Body)
	var envelope aspNetEnvelope
	if strings.HasPrefix(strings.TrimSpace(markup), "{") {
		if err := json.Unmarshal(response.Body, &envelope); err != nil {
			return a.errorResult(params, shared.WrapError(err, shared.ErrorCategoryProcessing, shared.CodeParseFailure, string(a.registrar), "decode", false), markup)
		}
		markup = envelope.D
	}

	return a.parseHTMLResult(params, markup)
}
