package campaign

import (
	"strings"

	"outreach-engine/internal/models"
)

// Variables builds the substitution map for one target. Constants are
// applied first so target fields win on a name clash.
func Variables(target models.Target, constants ...map[string]string) map[string]string {
	vars := make(map[string]string, 8)
	for _, c := range constants {
		for k, v := range c {
			vars[k] = v
		}
	}

	name := target.Name()
	vars["id"] = target.ID
	vars["handle"] = target.Handle
	vars["name"] = name
	vars["channel"] = string(target.Channel)
	if first := strings.Fields(name); len(first) > 0 {
		vars["first_name"] = first[0]
	}
	if target.DisplayName != nil && *target.DisplayName != "" {
		vars["display_name"] = *target.DisplayName
	}
	if len(target.Tags) > 0 {
		vars["tags"] = strings.Join(target.Tags, ", ")
	}
	return vars
}
