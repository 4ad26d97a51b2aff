package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Arm is the per-concept linear-regression state of the contextual bandit:
// A is a Dim x Dim matrix stored row-major, B a Dim-vector. A starts as the
// identity and only ever receives rank-1 additions, so it stays symmetric
// positive-definite and invertible. An arm row is written atomically as a
// whole; readers never see A updated without B.
type Arm struct {
	Key         string    `json:"key"`
	Dim         int       `json:"dim"`
	A           []float64 `json:"a"` // row-major Dim*Dim
	B           []float64 `json:"b"` // Dim
	Pulls       int64     `json:"pulls"`
	TotalReward float64   `json:"total_reward"`
}

// NewArm returns the identity-prior arm for a concept.
func NewArm(key string, dim int) *Arm {
	a := make([]float64, dim*dim)
	for i := 0; i < dim; i++ {
		a[i*dim+i] = 1
	}
	return &Arm{
		Key: key,
		Dim: dim,
		A:   a,
		B:   make([]float64, dim),
	}
}

// Clone returns a deep copy of the arm.
func (a *Arm) Clone() *Arm {
	return &Arm{
		Key:         a.Key,
		Dim:         a.Dim,
		A:           append([]float64(nil), a.A...),
		B:           append([]float64(nil), a.B...),
		Pulls:       a.Pulls,
		TotalReward: a.TotalReward,
	}
}

// ConceptArm is the persisted form of Arm, one row per concept key.
type ConceptArm struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ConceptKey string         `gorm:"column:concept_key;not null;index:idx_concept_arm_key,unique" json:"concept_key"`
	Dim        int            `gorm:"column:dim;not null" json:"dim"`
	A          datatypes.JSON `gorm:"column:a;type:jsonb" json:"a"`
	B          datatypes.JSON `gorm:"column:b;type:jsonb" json:"b"`

	Pulls       int64   `gorm:"column:pulls;not null;default:0" json:"pulls"`
	TotalReward float64 `gorm:"column:total_reward;not null;default:0" json:"total_reward"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (ConceptArm) TableName() string { return "concept_arm" }
