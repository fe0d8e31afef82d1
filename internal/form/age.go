package form

import (
	"fmt"
	"time"
)

// DateLayout is the wire format of date fields.
const DateLayout = "2006-01-02"

// Age returns the whole years between birth and today, counting a year only
// once its calendar anniversary has been reached.
func Age(birth, today time.Time) int {
	age := today.Year() - birth.Year()
	if today.Month() < birth.Month() || (today.Month() == birth.Month() && today.Day() < birth.Day()) {
		age--
	}
	return age
}

// AgeOn parses a YYYY-MM-DD birth date and returns the age on today.
func AgeOn(birthDate string, today time.Time) (int, error) {
	birth, err := time.Parse(DateLayout, birthDate)
	if err != nil {
		return 0, fmt.Errorf("parse birth date: %w", err)
	}
	return Age(birth, today), nil
}
