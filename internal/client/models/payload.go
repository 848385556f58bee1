package models

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrNameRequired = errors.New("name is required")

// Meal is the payload of a meals record.
type Meal struct {
	Name     string    `json:"name"`
	MealType string    `json:"mealType,omitempty"`
	Foods    []Food    `json:"foods,omitempty"`
	Calories float64   `json:"calories"`
	Protein  float64   `json:"protein"`
	Carbs    float64   `json:"carbs"`
	Fat      float64   `json:"fat"`
	DateTime time.Time `json:"dateTime"`
	Notes    string    `json:"notes,omitempty"`
}

func (m Meal) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return ErrNameRequired
	}
	return nil
}

// Workout is the payload of a workouts record.
type Workout struct {
	Name           string    `json:"name"`
	Type           string    `json:"type,omitempty"`
	Duration       float64   `json:"duration"`
	CaloriesBurned float64   `json:"caloriesBurned"`
	DateTime       time.Time `json:"dateTime"`
	Notes          string    `json:"notes,omitempty"`
}

func (w Workout) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return ErrNameRequired
	}
	return nil
}

// Food is a product entry, either part of a meal or kept in the food cache.
type Food struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Brand       string  `json:"brand,omitempty"`
	Calories    float64 `json:"calories"`
	Protein     float64 `json:"protein"`
	Carbs       float64 `json:"carbs"`
	Fat         float64 `json:"fat"`
	ServingSize string  `json:"servingSize,omitempty"`
	Image       string  `json:"image,omitempty"`
}

// Encode marshals a typed payload for the queue.
func Encode[T interface{ Validate() error }](v T) (json.RawMessage, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
