package checkout

import (
	"fmt"
	"strings"
	"time"
)

// OrderNumber formats ORD-{machine}-{last six digits of the unix millisecond clock}.
func OrderNumber(machineCode string, now time.Time) string {
	return fmt.Sprintf("ORD-%s-%06d", strings.ToUpper(strings.TrimSpace(machineCode)), now.UnixMilli()%1_000_000)
}
