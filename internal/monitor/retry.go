package monitor

import "time"

// retry runs fn up to attempts times, sleeping delay between tries, and
// returns the last error. Navigation, row-open and relaunch retries all go
// through here.
func retry(attempts int, delay time.Duration, sleep func(time.Duration), fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 && delay > 0 && sleep != nil {
			sleep(delay)
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}
