package detector

import (
	"github.com/tempesta-tech/webshield/pkg/user"
)

// validateModel implements the two-window validation model shared by
// every detector variant. See FindUsers for the windows this compares.
func validateModel(validationKey user.Key, intersectionPercent float64, usersBefore, usersAfter []user.User) []user.User {
	if len(usersBefore) == 0 {
		return nil
	}

	before := user.Keys(usersBefore, validationKey)
	after := user.Keys(usersAfter, validationKey)

	intersection := 0
	for k := range before {
		if _, ok := after[k]; ok {
			intersection++
		}
	}

	percent := 100 * float64(intersection) / float64(len(usersBefore))
	if percent > intersectionPercent {
		return nil
	}

	return usersAfter
}
