package utils

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/gasdepot_backend/config"
	"github.com/shopspring/decimal"
)

func IsValidEmail(email string) bool {
	// Basic email validation regex pattern
	pattern := `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	regex := regexp.MustCompile(pattern)
	return regex.MatchString(email)
}

func ProcessValidationErrors(err error) map[string]string {

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return map[string]string{"error": err.Error()}
	}

	errorResponse := make(map[string]string)

	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

func DereferencePtr[T any](ptr *T, defaults ...T) T {
	if ptr != nil {
		return *ptr
	}
	var def T
	if len(defaults) > 0 {
		def = defaults[0]
	}
	return def
}

func UniqueSlice[T comparable](slice []T) []T {
	seen := make(map[T]bool)
	result := []T{}
	for _, v := range slice {
		if !seen[v] {
			seen[v] = true
			result = append(result, v)
		}
	}
	return result
}

// ConvertToDate truncates t to a date (midnight) in the given timezone.
// Daily aggregate rows are keyed by this value.
func ConvertToDate(t time.Time, timezone string) (time.Time, error) {
	if timezone == "" {
		timezone = config.DepotTimezone()
	}

	location, err := time.LoadLocation(timezone)
	if err != nil {
		return t, err
	}
	localTime := t.In(location)

	dateOnly := time.Date(localTime.Year(), localTime.Month(), localTime.Day(), 0, 0, 0, 0, location)
	return dateOnly, nil
}

// ParseDecimal converts a string to a decimal.Decimal value.
func ParseDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, errors.New("empty decimal string")
	}

	dec, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, err
	}

	return dec, nil
}

// productLocks backs ProductLock when Redis is not configured (local dev,
// unit tests, single-instance deployments). Keyed by lock key string.
var productLocks sync.Map

// ProductLock serializes read-then-write stock and assignment paths for one
// product. Every mutation of a product stock record or of an employee's
// assignment pool must run between ProductLock and the returned release func;
// the counter table and the daily aggregate upserts are the only state safe
// to mutate without it.
//
// Uses redislock when Redis is connected (works across instances), otherwise
// falls back to an in-process keyed mutex.
func ProductLock(ctx context.Context, productId int, moduleName string, functionName string) (func(), error) {
	lockKey := fmt.Sprintf("productLock:%d", productId)

	locker := config.GetRedisLock()
	if locker == nil {
		v, _ := productLocks.LoadOrStore(lockKey, &sync.Mutex{})
		mu := v.(*sync.Mutex)
		mu.Lock()
		return mu.Unlock, nil
	}

	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 100),
	})
	if err == redislock.ErrNotObtained {
		config.LogError(config.GetLogger(), moduleName, functionName, "Could not obtain product lock", productId, err)
		return nil, errors.New("could not obtain product lock")
	} else if err != nil {
		config.LogError(config.GetLogger(), moduleName, functionName, "Error obtaining product lock", productId, err)
		return nil, err
	}

	return func() { _ = lock.Release(ctx) }, nil
}
