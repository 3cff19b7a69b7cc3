package pdf

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/jurisconnect/internal/model"
)

func TestGenerateCompletionCertificate(t *testing.T) {
	completed := time.Date(2026, 4, 10, 15, 30, 0, 0, time.UTC)
	cert := model.CompletionCertificate{
		Request: model.ServiceRequest{
			ID:                 uuid.New(),
			Title:              "Protocolo de petição",
			ServiceType:        model.ServiceTypeFiling,
			ServiceArea:        model.Location{City: "São Paulo", State: "SP", Court: "TJSP"},
			Deadline:           completed,
			Status:             model.StatusCompleted,
			CompletedAt:        &completed,
			CompanyValue:       decimal.NewNullDecimal(decimal.NewFromInt(250)),
			CorrespondentValue: decimal.NewNullDecimal(decimal.NewFromInt(150)),
			ProfitMargin:       decimal.NewNullDecimal(decimal.NewFromInt(100)),
			CompletionReport: &model.CompletionReport{
				Content:     "Petição protocolada no balcão.",
				SubmittedAt: &completed,
				Attachments: []model.Attachment{{Name: "protocolo.pdf", Path: "/files/protocolo.pdf", UploadedAt: completed}},
			},
		},
		Company:       model.Company{Name: "Advocacia Ribeiro", CNPJ: "11.222.333/0001-44"},
		Correspondent: model.Correspondent{FullName: "Ana Lima", OAB: model.OAB{Number: "123456", State: "SP"}},
		IssuedAt:      completed.Add(time.Hour),
	}

	for _, internal := range []bool{false, true} {
		cert.ShowInternalValues = internal
		data, err := NewGenerator().Generate(cert)
		require.NoError(t, err)
		require.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
	}
}

func TestLocation(t *testing.T) {
	require.Equal(t, "Campinas/SP", location(model.Location{City: "Campinas", State: "SP"}))
	require.Equal(t, "TJSP, 2ª Vara, Santos/SP", location(model.Location{City: "Santos", State: "SP", Court: "TJSP", CourtSection: "2ª Vara"}))
}
