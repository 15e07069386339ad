package utils

import (
	"fmt"
	"time"
)

var wibLocation = time.FixedZone("WIB", 7*60*60)

// ConvertDateTimeToHumanReadableFormat renders a unix timestamp the way
// receipts show it, e.g. "02 January 2006, 15:04 WIB".
func ConvertDateTimeToHumanReadableFormat(datetime int64) string {
	return time.Unix(datetime, 0).In(wibLocation).Format("02 January 2006, 15:04 WIB")
}

// ConvertDateTimeWibToUnixTimestamp parses the gateway's "2006-01-02 15:04:05"
// timestamps, which are always in Jakarta time.
func ConvertDateTimeWibToUnixTimestamp(wibTime string) (int64, error) {
	if wibTime == "" {
		return 0, nil
	}

	t, err := time.ParseInLocation("2006-01-02 15:04:05", wibTime, wibLocation)
	if err != nil {
		return 0, fmt.Errorf("error parsing time: %v", err)
	}

	return t.Unix(), nil
}
