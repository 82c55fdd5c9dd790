package issuer

import (
	"time"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
	catalog "github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/issuer"
)

// response cuerpo común de todas las operaciones del Issuer. code ausente = respuesta ilegible.
type response struct {
	Code              *int       `json:"code"`
	Message           string     `json:"message"`
	RequestNumber     string     `json:"request_number"`
	CertificateNumber string     `json:"certificate_number"`
	Issued            bool       `json:"issued"`
	Transferred       bool       `json:"transferred"`
	DownloadLink      string     `json:"download_link"`
	LinksExpireAt     *time.Time `json:"links_expire_at"`
}

type updateStatusRequest struct {
	Action string `json:"action"`
}

func (r *response) toResult() *entity.IssuerResult {
	res := &entity.IssuerResult{
		Message:           r.Message,
		RequestNumber:     r.RequestNumber,
		CertificateNumber: r.CertificateNumber,
		Issued:            r.Issued || r.CertificateNumber != "",
		Transferred:       r.Transferred,
		Links:             catalog.DeriveLinks(r.DownloadLink),
	}
	if r.Code != nil {
		res.StatusCode = *r.Code
	}
	if r.LinksExpireAt != nil {
		exp := r.LinksExpireAt.UTC()
		res.LinksExpireAt = &exp
	}
	return res
}
