package entity

import (
	"time"

	"github.com/google/uuid"
)

type ProvisioningStatus string

const (
	ProvisioningStatusProvisioning ProvisioningStatus = "provisioning"
	ProvisioningStatusReady        ProvisioningStatus = "ready"
	ProvisioningStatusDeleting     ProvisioningStatus = "deleting"
	ProvisioningStatusError        ProvisioningStatus = "error"
)

type Workspace struct {
	Id            uuid.UUID
	OwnerId       uuid.UUID
	Name          string
	Description   string
	RagConfig     RagConfig
	Status        ProvisioningStatus
	StatusVersion int64
	StatusMessage *string
	CreatedAt     time.Time
	UpdatedAt     *time.Time
}

func (w *Workspace) IsReady() bool {
	return w.Status == ProvisioningStatusReady
}

// ConfigMutable reports whether RagConfig may still change. It is frozen once provisioning ends.
func (w *Workspace) ConfigMutable() bool {
	return w.Status == ProvisioningStatusProvisioning
}
