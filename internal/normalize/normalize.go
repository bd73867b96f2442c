// Package normalize converts detailed Strava activity payloads into the
// records we persist. Both the polling sync and the webhook path go through
// these functions so the two never disagree on field semantics.
package normalize

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bourbonchasers/gruppetto/internal/model"
	"github.com/bourbonchasers/gruppetto/internal/strava"
)

// Activity maps a detailed activity onto the stored record. Plain numeric
// fields default to zero when the API omits them; heart rate and power
// metrics stay nil because a zero reading means something different from "not
// recorded". The start date is kept in the activity's local reference frame.
func Activity(athleteID int64, detail *strava.DetailedActivity) (*model.Activity, error) {
	if detail == nil || detail.ID == 0 {
		return nil, fmt.Errorf("activity has no id")
	}
	if detail.StartDateLocal.IsZero() {
		return nil, fmt.Errorf("activity %d has no start date", detail.ID)
	}

	movingTime, err := seconds(detail.MovingTime)
	if err != nil {
		return nil, fmt.Errorf("activity %d moving time: %w", detail.ID, err)
	}
	elapsedTime, err := seconds(detail.ElapsedTime)
	if err != nil {
		return nil, fmt.Errorf("activity %d elapsed time: %w", detail.ID, err)
	}

	var description *string
	if detail.Description != "" {
		description = &detail.Description
	}

	return &model.Activity{
		ID:                 detail.ID,
		AthleteID:          athleteID,
		Name:               detail.Name,
		SportType:          sportType(detail),
		StartDateLocal:     detail.StartDateLocal,
		Distance:           detail.Distance,
		MovingTime:         movingTime,
		ElapsedTime:        elapsedTime,
		TotalElevationGain: detail.TotalElevationGain,
		AverageSpeed:       detail.AverageSpeed,
		MaxSpeed:           detail.MaxSpeed,
		AverageHeartrate:   detail.AverageHeartrate,
		MaxHeartrate:       detail.MaxHeartrate,
		AverageWatts:       detail.AverageWatts,
		Kilojoules:         detail.Kilojoules,
		Description:        description,
		UpdatedAt:          time.Now(),
	}, nil
}

// HeartRateZones extracts the five heart rate buckets from the zone
// distributions, or nil when the activity reported no heartrate zone. Fewer
// than five reported buckets leave the remaining zones at zero.
func HeartRateZones(activityID int64, zones []strava.Zone) *model.HeartRateZones {
	for _, z := range zones {
		if z.Type != "heartrate" {
			continue
		}

		hrz := &model.HeartRateZones{ActivityID: activityID}
		buckets := []*int64{&hrz.Zone1Time, &hrz.Zone2Time, &hrz.Zone3Time, &hrz.Zone4Time, &hrz.Zone5Time}
		for i, bucket := range buckets {
			if i < len(z.DistributionBuckets) {
				*bucket = z.DistributionBuckets[i].Time
			}
		}
		return hrz
	}
	return nil
}

// sportType returns the canonical label for the activity type. Older
// payloads only carry the legacy type field.
func sportType(detail *strava.DetailedActivity) string {
	if detail.SportType != "" {
		return detail.SportType
	}
	return detail.Type
}

// seconds converts a duration reported as a raw numeric count into whole
// seconds, treating an absent value as zero.
func seconds(n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("malformed duration %q", n.String())
	}
	return int64(f), nil
}
