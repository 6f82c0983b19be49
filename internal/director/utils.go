package director

import (
	"fmt"
	"path/filepath"
)

// ScenarioPath names the scenario dump written next to a render's output.
func ScenarioPath(dir, sessionID string) string {
	return filepath.Join(dir, fmt.Sprintf("scenario_%s.yaml", sessionID))
}
