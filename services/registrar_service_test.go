package services

import (
	"testing"

	"github.com/fenilmodi00/ipo-allotment/models"
	"github.com/stretchr/testify/assert"
)

func TestIdentifyRegistrar(t *testing.T) {
	registrars := NewRegistrarService()

	tests := []struct {
		raw      string
		expected models.RegistrarType
	}{
		{"Link Intime India Private Ltd", models.RegistrarLinkIntime},
		{"LINKINTIME", models.RegistrarLinkIntime},
		{"KFin Technologies Limited", models.RegistrarKFintech},
		{"Karvy Fintech", models.RegistrarKFintech},
		{"kosmic", models.RegistrarKFintech},
		{"Bigshare Services Pvt Ltd", models.RegistrarBigshare},
		{"Maashitla Securities Private Limited", models.RegistrarMaashitla},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			info := registrars.Identify(tt.raw)
			assert.Equal(t, tt.expected, info.Type)
			assert.Equal(t, registrars.URL(tt.expected), info.URL)
			assert.NotEmpty(t, info.URL)
		})
	}
}

func TestIdentifyUnknownRegistrar(t *testing.T) {
	registrars := NewRegistrarService()

	info := registrars.Identify("Skyline Financial Services")
	assert.Equal(t, models.RegistrarUnknown, info.Type)
	assert.Equal(t, "Skyline Financial Services", info.Name)
	assert.Equal(t, "https://www.google.com/search?q=Skyline+Financial+Services+allotment+status", info.URL)

	assert.Equal(t, "Unknown Registrar", registrars.Identify("").Name)
}

func TestRegistrarDirectoryURLs(t *testing.T) {
	registrars := NewRegistrarService()

	assert.Equal(t, "Link Intime", registrars.Info(models.RegistrarLinkIntime).Name)
	assert.Equal(t, "https://kosmic.kfintech.com/ipostatus/", registrars.DiscoveryURL(models.RegistrarKFintech))
	assert.Empty(t, registrars.DiscoveryURL(models.RegistrarMaashitla))
	assert.Len(t, registrars.DiscoverableRegistrars(), 3)
	for _, registrar := range registrars.DiscoverableRegistrars() {
		assert.NotEmpty(t, registrars.DiscoveryURL(registrar))
	}
}
