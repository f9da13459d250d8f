package services

import (
	"context"
	"net/url"

	"github.com/fenilmodi00/ipo-allotment/models"
)

const kfintechBaseURL = "https://kosmic.kfintech.com"

// KFintechAdapter checks allotments on the KFintech kosmic portal, which returns an HTML result table
type KFintechAdapter struct {
	BaseRegistrarAdapter
}

// NewKFintechAdapter creates a KFintech adapter
func NewKFintechAdapter(opts AdapterOptions) *KFintechAdapter {
	return &KFintechAdapter{
		BaseRegistrarAdapter: newBaseRegistrarAdapter(models.RegistrarKFintech, kfintechBaseURL, opts),
	}
}

func (a *KFintechAdapter) CheckAllotment(ctx context.Context, params models.AllotmentCheckParams) (result models.AllotmentResult) {
	if invalid, ok := a.validateInput(params); !ok {
		return invalid
	}
	defer a.recoverToError(params, &result)

	form := url.Values{}
	form.Set("ddlCompany", params.RegistrarCompanyCode())
	form.Set("txtPAN", params.PAN)
	if params.ApplicationNumber != "" {
		form.Set("txtAppNo", params.ApplicationNumber)
	}

	response, err := a.post(ctx, "/ipostatus/", "application/x-www-form-urlencoded", []byte(form.Encode()), map[string]string{
		"Referer": kfintechBaseURL + "/ipostatus/",
	})
	if err != nil {
		raw := ""
		if response != nil {
			raw = string(response.Body)
		}
		return a.errorResult(params, err, raw)
	}

	return a.parseHTMLResult(params, string(response.Body))
}
