package models

import (
	"fmt"
	"time"
)

// Customer represents a customer account serviced in the field.
type Customer struct {
	ID        string `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	Email     string `db:"email" json:"email,omitempty"`
	Phone     string `db:"phone" json:"phone,omitempty"`
	Address   string `db:"address" json:"address,omitempty"`
	Notes     string `db:"notes" json:"notes,omitempty"`
	Active    bool   `db:"active" json:"active"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
}

// Collection returns the cache collection for Customer.
func (Customer) Collection() string {
	return CollectionCustomers
}

// GetID returns the entity id.
func (c *Customer) GetID() string { return c.ID }

// SetID sets the entity id.
func (c *Customer) SetID(id string) { c.ID = id }

// Stamp initializes creation timestamps for a new record.
func (c *Customer) Stamp(now int64) {
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Active = true
}

// Touch updates the UpdatedAt timestamp.
func (c *Customer) Touch() {
	c.UpdatedAt = time.Now().Unix()
}

// Validate checks that a record read back from the cache is well formed.
func (c *Customer) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("customer: missing id")
	}
	if c.Name == "" {
		return fmt.Errorf("customer %s: missing name", c.ID)
	}
	if c.CreatedAt <= 0 || c.UpdatedAt <= 0 {
		return fmt.Errorf("customer %s: missing timestamps", c.ID)
	}
	return nil
}
