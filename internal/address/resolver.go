// Package address resolves the shipping snapshot copied onto an order.
package address

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/lookup"
)

// Source records where a snapshot came from.
type Source string

const (
	SourceStore       Source = "address_store"
	SourceGateway     Source = "gateway"
	SourcePlaceholder Source = "placeholder"
)

// Placeholder values written when no address could be recovered.
const (
	PlaceholderName  = "Unknown"
	PlaceholderLine1 = "ADDRESS PENDING REVIEW"
)

// GatewayShipping is the shipping block a payment gateway attaches to a
// charge.
type GatewayShipping struct {
	Name       string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Input carries everything the reconciler knows about the address.
type Input struct {
	AddressID string
	Gateway   *GatewayShipping
}

// Resolution is the chosen snapshot. Degraded is set when the stored address
// could not be used; Reasons explain why.
type Resolution struct {
	Snapshot  models.ShippingSnapshot
	AddressID *uuid.UUID
	Source    Source
	Degraded  bool
	Reasons   []string
}

// Resolver picks the address store first, then gateway shipping details, then
// a placeholder. It never fails.
type Resolver struct {
	repo   Repository
	policy lookup.Policy
	logg   *logger.Logger
}

func NewResolver(repo Repository, policy lookup.Policy, logg *logger.Logger) *Resolver {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Resolver{repo: repo, policy: policy, logg: logg}
}

func (r *Resolver) Resolve(ctx context.Context, in Input) Resolution {
	var reasons []string

	if raw := strings.TrimSpace(in.AddressID); raw != "" {
		addr, reason := r.fromStore(ctx, raw)
		if addr != nil {
			return Resolution{Snapshot: snapshotFromAddress(addr), AddressID: &addr.ID, Source: SourceStore}
		}
		reasons = append(reasons, reason)
	} else {
		reasons = append(reasons, "address reference missing")
	}

	if in.Gateway != nil {
		snapshot, err := mapGatewayShipping(in.Gateway)
		if err == nil {
			return Resolution{Snapshot: snapshot, Source: SourceGateway, Degraded: true, Reasons: reasons}
		}
		reasons = append(reasons, "gateway shipping unusable: "+err.Error())
	}

	r.logg.Warn(r.logg.WithField(ctx, "address_id", in.AddressID), "no usable address, writing placeholder")
	return Resolution{
		Snapshot: placeholder(in.Gateway),
		Source:   SourcePlaceholder,
		Degraded: true,
		Reasons:  append(reasons, "placeholder address"),
	}
}

func (r *Resolver) fromStore(ctx context.Context, raw string) (*models.Address, string) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, "address reference malformed"
	}
	if r.repo == nil {
		return nil, "address store unavailable"
	}

	var addr *models.Address
	err = r.policy.Do(ctx, func(ctx context.Context) error {
		found, err := r.repo.FindByID(ctx, id)
		addr = found
		return err
	})
	if err != nil {
		if errors.CodeOf(err) == errors.CodeNotFound {
			return nil, "address not found"
		}
		r.logg.Error(r.logg.WithField(ctx, "address_id", raw), "address lookup failed", err)
		return nil, "address lookup failed"
	}
	return addr, ""
}

func snapshotFromAddress(addr *models.Address) models.ShippingSnapshot {
	return models.ShippingSnapshot{
		FirstName:  addr.FirstName,
		LastName:   addr.LastName,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    strings.ToUpper(addr.Country),
		Phone:      addr.Phone,
	}
}

func mapGatewayShipping(s *GatewayShipping) (models.ShippingSnapshot, error) {
	if s == nil {
		return models.ShippingSnapshot{}, errors.New(errors.CodeValidation, "shipping details missing")
	}
	line1 := strings.TrimSpace(s.Line1)
	if line1 == "" {
		return models.ShippingSnapshot{}, errors.New(errors.CodeValidation, "address line1 missing")
	}
	city := strings.TrimSpace(s.City)
	if city == "" {
		return models.ShippingSnapshot{}, errors.New(errors.CodeValidation, "city missing")
	}
	postalCode := strings.TrimSpace(s.PostalCode)
	if postalCode == "" {
		return models.ShippingSnapshot{}, errors.New(errors.CodeValidation, "postal code missing")
	}
	country := strings.ToUpper(strings.TrimSpace(s.Country))
	if country == "" {
		return models.ShippingSnapshot{}, errors.New(errors.CodeValidation, "country missing")
	}

	first, last := splitName(s.Name)
	return models.ShippingSnapshot{
		FirstName:  first,
		LastName:   last,
		Line1:      line1,
		Line2:      ptr(strings.TrimSpace(s.Line2)),
		City:       city,
		State:      strings.TrimSpace(s.State),
		PostalCode: postalCode,
		Country:    country,
		Phone:      ptr(strings.TrimSpace(s.Phone)),
	}, nil
}

func placeholder(gateway *GatewayShipping) models.ShippingSnapshot {
	snapshot := models.ShippingSnapshot{FirstName: PlaceholderName, Line1: PlaceholderLine1}
	if gateway != nil {
		if first, last := splitName(gateway.Name); first != "" {
			snapshot.FirstName, snapshot.LastName = first, last
		}
		snapshot.Country = strings.ToUpper(strings.TrimSpace(gateway.Country))
		snapshot.Phone = ptr(strings.TrimSpace(gateway.Phone))
	}
	return snapshot
}

// splitName puts everything before the last space in the first name.
func splitName(name string) (string, string) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "", ""
	}
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return name, ""
	}
	return name[:idx], name[idx+1:]
}

func ptr(value string) *string {
	if value == "" {
		return nil
	}
	v := value
	return &v
}
