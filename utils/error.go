package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrorInsufficientStock is a validation error: the request was rejected
// before any mutation happened.
var ErrorInsufficientStock = errors.New("insufficient stock")

// ErrorNoPricedAssignment means the employee has no received assignment with
// remaining quantity to price a sale from. Always fatal for the sale, even
// when oversell is tolerated.
var ErrorNoPricedAssignment = errors.New("no received assignment with remaining quantity")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
