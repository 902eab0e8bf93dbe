package domain

import (
	"testing"
	"time"
)

func TestEnsureID(t *testing.T) {
	p := Product{ID: "1"}
	if !p.EnsureID() || !IsUUID(p.ID) {
		t.Fatalf("Expected legacy id replaced by a UUID, got %q", p.ID)
	}

	id := p.ID
	if p.EnsureID() || p.ID != id {
		t.Errorf("Expected valid UUID kept, got %q", p.ID)
	}
}

func TestNormalize(t *testing.T) {
	p := Product{Price: -3, Rating: 9}
	p.Normalize()

	if p.Images == nil || p.Specifications == nil || p.Reviews == nil {
		t.Error("Expected nil slices replaced by empty ones")
	}
	if p.Price != 0 || p.Rating != 5 {
		t.Errorf("Expected clamped price and rating, got %v %v", p.Price, p.Rating)
	}

	p.Rating = -1
	p.Normalize()
	if p.Rating != 0 {
		t.Errorf("Expected rating clamped to 0, got %v", p.Rating)
	}
}

func TestLastChange(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := Product{CreatedAt: created}
	if !p.LastChange().Equal(created) {
		t.Errorf("Expected created time without update, got %v", p.LastChange())
	}

	p.UpdatedAt = created.Add(time.Hour)
	if !p.LastChange().Equal(p.UpdatedAt) {
		t.Errorf("Expected updated time, got %v", p.LastChange())
	}
}
