package service

import (
	"math"
	"strconv"
	"time"
)

const earthRadiusMeters = 6371000.0

// GeoPoint 经纬度（WGS84）
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid 经纬度范围
func (p GeoPoint) Valid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// DistanceMeters 球面距离（haversine）
func DistanceMeters(a, b GeoPoint) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// LateMinutes 超过 scheduled+grace 的整分钟数，未超过为 0
func LateMinutes(scheduled *time.Time, checkIn time.Time, grace time.Duration) int {
	if scheduled == nil {
		return 0
	}
	over := checkIn.Sub(scheduled.Add(grace))
	if over <= 0 {
		return 0
	}
	return int(over / time.Minute)
}

// CheckInResult 签到计算结果，原样保存到 check_in_info
type CheckInResult struct {
	Location        GeoPoint   `json:"location"`
	Target          *GeoPoint  `json:"target,omitempty"`
	DistanceMeters  *float64   `json:"distanceMeters,omitempty"`
	ToleranceMeters float64    `json:"toleranceMeters,omitempty"`
	WithinRange     *bool      `json:"withinRange,omitempty"`
	ScheduledAt     *time.Time `json:"scheduledAt,omitempty"`
	CheckInAt       time.Time  `json:"checkInAt"`
	GraceMinutes    int        `json:"graceMinutes"`
	IsLate          bool       `json:"isLate"`
	LateMinutes     int        `json:"lateMinutes"`
	Message         string     `json:"message"`
}

// ComputeCheckIn 签到计算；target 为空时不做围栏校验
func ComputeCheckIn(location GeoPoint, target *GeoPoint, tolerance float64, scheduled *time.Time, now time.Time, graceMinutes int) *CheckInResult {
	r := &CheckInResult{
		Location:     location,
		ScheduledAt:  scheduled,
		CheckInAt:    now,
		GraceMinutes: graceMinutes,
	}

	if target != nil {
		d := math.Round(DistanceMeters(location, *target)*10) / 10
		within := d <= tolerance
		t := *target
		r.Target = &t
		r.DistanceMeters = &d
		r.ToleranceMeters = tolerance
		r.WithinRange = &within
	}

	r.LateMinutes = LateMinutes(scheduled, now, time.Duration(graceMinutes)*time.Minute)
	r.IsLate = r.LateMinutes > 0

	r.Message = "签到成功"
	if r.IsLate {
		r.Message += "，迟到 " + strconv.Itoa(r.LateMinutes) + " 分钟"
	}
	if r.WithinRange != nil && !*r.WithinRange {
		r.Message += "，不在签到范围内"
	}
	return r
}
