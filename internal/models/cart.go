package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CartItem struct {
	CourseID     uint            `json:"course_id"`
	Title        string          `json:"title"`
	Price        decimal.Decimal `json:"price"`
	InstructorID string          `json:"instructor_id"`
}

// Cart is a session-scoped list of courses, unique per course id.
type Cart struct {
	SessionID string     `json:"session_id"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func NewCart(sessionID string) *Cart {
	return &Cart{SessionID: sessionID, Items: []CartItem{}}
}

func (c *Cart) Contains(courseID uint) bool {
	for _, item := range c.Items {
		if item.CourseID == courseID {
			return true
		}
	}
	return false
}

// Add appends the item unless the course is already in the cart.
func (c *Cart) Add(item CartItem) bool {
	if c.Contains(item.CourseID) {
		return false
	}
	c.Items = append(c.Items, item)
	c.UpdatedAt = time.Now()
	return true
}

func (c *Cart) Remove(courseID uint) bool {
	for i, item := range c.Items {
		if item.CourseID == courseID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

func (c *Cart) Clear() {
	c.Items = []CartItem{}
	c.UpdatedAt = time.Now()
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Price)
	}
	return total
}

func (c *Cart) CourseIDs() []uint {
	ids := make([]uint, len(c.Items))
	for i, item := range c.Items {
		ids[i] = item.CourseID
	}
	return ids
}
