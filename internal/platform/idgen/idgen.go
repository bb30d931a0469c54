// Package idgen produit des identifiants uniques triables par date de création.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

const (
	PrefixIncident = "INC"
	PrefixAlert    = "ALT"
	PrefixLocation = "LOC"
	PrefixAudit    = "AUD"
)

// New retourne "<PREFIX>_<UUIDv7>" ; l'UUIDv7 commence par un horodatage en
// millisecondes, l'ordre lexicographique suit donc l'ordre de création.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + "_" + strings.ToUpper(id.String())
}

func Incident() string { return New(PrefixIncident) }
func Alert() string    { return New(PrefixAlert) }
func Location() string { return New(PrefixLocation) }
func Audit() string    { return New(PrefixAudit) }
