package controllers

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
)

// LotResponse is the public shape of a credit lot.
type LotResponse struct {
	ID               uuid.UUID        `json:"id"`
	CreditType       enums.CreditType `json:"creditType"`
	TaxYear          int              `json:"taxYear"`
	FaceValueUSD     decimal.Decimal  `json:"faceValueUsd"`
	AvailableUSD     decimal.Decimal  `json:"availableUsd"`
	MinBlockUSD      decimal.Decimal  `json:"minBlockUsd"`
	PricePerDollar   decimal.Decimal  `json:"pricePerDollar"`
	Status           enums.LotStatus  `json:"status"`
	Jurisdiction     *string          `json:"jurisdiction,omitempty"`
	StateRestriction *string          `json:"stateRestriction,omitempty"`
	CloseBy          *time.Time       `json:"closeBy,omitempty"`
	BrokerID         *uuid.UUID       `json:"brokerId,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

func lotFromModel(l *models.CreditLot) *LotResponse {
	if l == nil {
		return nil
	}
	return &LotResponse{
		ID:               l.ID,
		CreditType:       l.CreditType,
		TaxYear:          l.TaxYear,
		FaceValueUSD:     l.FaceValueUSD,
		AvailableUSD:     l.AvailableUSD,
		MinBlockUSD:      l.MinBlockUSD,
		PricePerDollar:   l.PricePerDollar,
		Status:           l.Status,
		Jurisdiction:     l.Jurisdiction,
		StateRestriction: l.StateRestriction,
		CloseBy:          l.CloseBy,
		BrokerID:         l.BrokerID,
		CreatedAt:        l.CreatedAt,
		UpdatedAt:        l.UpdatedAt,
	}
}

func lotsFromModels(rows []models.CreditLot) []*LotResponse {
	out := make([]*LotResponse, 0, len(rows))
	for i := range rows {
		out = append(out, lotFromModel(&rows[i]))
	}
	return out
}

type LotPage struct {
	Lots       []*LotResponse `json:"lots"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// HoldResponse reports EXPIRED for lapsed holds the sweep has not reached yet.
type HoldResponse struct {
	HoldID          uuid.UUID        `json:"holdId"`
	LotID           uuid.UUID        `json:"lotId"`
	CompanyID       uuid.UUID        `json:"companyId"`
	AmountUSD       decimal.Decimal  `json:"amountUsd"`
	Status          enums.HoldStatus `json:"status"`
	ExpiresAt       time.Time        `json:"expiresAt"`
	ConsumedOrderID *uuid.UUID       `json:"consumedOrderId,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

func holdFromModel(h *models.Hold, now time.Time) *HoldResponse {
	if h == nil {
		return nil
	}
	return &HoldResponse{
		HoldID:          h.ID,
		LotID:           h.LotID,
		CompanyID:       h.CompanyID,
		AmountUSD:       h.AmountUSD,
		Status:          h.EffectiveStatus(now),
		ExpiresAt:       h.ExpiresAt,
		ConsumedOrderID: h.ConsumedOrderID,
		CreatedAt:       h.CreatedAt,
	}
}

type OrderResponse struct {
	ID                 uuid.UUID           `json:"id"`
	LotID              uuid.UUID           `json:"lotId"`
	CompanyID          uuid.UUID           `json:"companyId"`
	HoldID             *uuid.UUID          `json:"holdId,omitempty"`
	AmountUSD          decimal.Decimal     `json:"amountUsd"`
	PricePerDollar     decimal.Decimal     `json:"pricePerDollar"`
	SubtotalUSD        decimal.Decimal     `json:"subtotalUsd"`
	PlatformFeeUSD     decimal.Decimal     `json:"platformFeeUsd"`
	BrokerFeeUSD       decimal.Decimal     `json:"brokerFeeUsd"`
	TotalUSD           decimal.Decimal     `json:"totalUsd"`
	SavingsUSD         decimal.Decimal     `json:"savingsUsd"`
	PaymentStatus      enums.PaymentStatus `json:"paymentStatus"`
	PaymentMethod      enums.PaymentMethod `json:"paymentMethod"`
	BrokerStatus       enums.BrokerStatus  `json:"brokerStatus"`
	BrokerNote         *string             `json:"brokerNote,omitempty"`
	PaymentRef         *string             `json:"paymentRef,omitempty"`
	PaidAt             *time.Time          `json:"paidAt,omitempty"`
	ClosingDocumentURL *string             `json:"closingDocumentUrl,omitempty"`
	CertificateURL     *string             `json:"certificateUrl,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

func orderFromModel(o *models.PurchaseOrder) *OrderResponse {
	if o == nil {
		return nil
	}
	return &OrderResponse{
		ID:                 o.ID,
		LotID:              o.LotID,
		CompanyID:          o.CompanyID,
		HoldID:             o.HoldID,
		AmountUSD:          o.AmountUSD,
		PricePerDollar:     o.PricePerDollar,
		SubtotalUSD:        o.SubtotalUSD,
		PlatformFeeUSD:     o.PlatformFeeUSD,
		BrokerFeeUSD:       o.BrokerFeeUSD,
		TotalUSD:           o.TotalUSD,
		SavingsUSD:         o.SavingsUSD,
		PaymentStatus:      o.PaymentStatus,
		PaymentMethod:      o.PaymentMethod,
		BrokerStatus:       o.BrokerStatus,
		BrokerNote:         o.BrokerNote,
		PaymentRef:         o.PaymentRef,
		PaidAt:             o.PaidAt,
		ClosingDocumentURL: o.ClosingDocumentURL,
		CertificateURL:     o.CertificateURL,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

type CheckoutResponse struct {
	Order      *OrderResponse `json:"order"`
	PaymentURL string         `json:"paymentUrl,omitempty"`
}

type OrderPage struct {
	Orders     []*OrderResponse `json:"orders"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

type NotificationResponse struct {
	ID        uuid.UUID              `json:"id"`
	Type      enums.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Link      *string                `json:"link,omitempty"`
	ReadAt    *time.Time             `json:"readAt,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

type NotificationPage struct {
	Items      []NotificationResponse `json:"items"`
	NextCursor string                 `json:"nextCursor,omitempty"`
}

func notificationsFromModels(rows []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(rows))
	for _, n := range rows {
		out = append(out, NotificationResponse{
			ID:        n.ID,
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Message,
			Link:      n.Link,
			ReadAt:    n.ReadAt,
			CreatedAt: n.CreatedAt,
		})
	}
	return out
}

type AuditLogResponse struct {
	ID         int64             `json:"id"`
	ActorID    *uuid.UUID        `json:"actorId,omitempty"`
	ActorEmail string            `json:"actorEmail,omitempty"`
	Action     enums.AuditAction `json:"action"`
	EntityType string            `json:"entityType"`
	EntityID   string            `json:"entityId"`
	CompanyID  *uuid.UUID        `json:"companyId,omitempty"`
	AmountUSD  *decimal.Decimal  `json:"amountUsd,omitempty"`
	Details    json.RawMessage   `json:"details,omitempty"`
	IP         *string           `json:"ip,omitempty"`
	RequestID  *string           `json:"requestId,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

type AuditPage struct {
	Items      []AuditLogResponse `json:"items"`
	NextCursor string             `json:"nextCursor,omitempty"`
}

func auditFromModels(rows []models.AuditLog) []AuditLogResponse {
	out := make([]AuditLogResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, AuditLogResponse{
			ID:         row.ID,
			ActorID:    row.ActorID,
			ActorEmail: row.ActorEmail,
			Action:     row.Action,
			EntityType: row.EntityType,
			EntityID:   row.EntityID,
			CompanyID:  row.CompanyID,
			AmountUSD:  row.AmountUSD,
			Details:    row.Details,
			IP:         row.IP,
			RequestID:  row.RequestID,
			CreatedAt:  row.CreatedAt,
		})
	}
	return out
}

type CompanyResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	State *string   `json:"state,omitempty"`
}

func companiesFromModels(rows []models.Company) []CompanyResponse {
	out := make([]CompanyResponse, 0, len(rows))
	for _, c := range rows {
		out = append(out, CompanyResponse{ID: c.ID, Name: c.Name, State: c.State})
	}
	return out
}
