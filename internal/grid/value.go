package grid

import (
	"database/sql/driver"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// timeLayout matches how result timestamps are written back into reports.
const timeLayout = "2006-01-02 15:04:05.999999999"

// FromValue converts a value scanned from a database driver into a Cell.
//
// Numeric kinds become Number, strings and byte slices become Text, nil
// becomes Null. 16-byte arrays are treated as UUIDs (pgx returns uuid
// columns that way). Values implementing driver.Valuer are unwrapped first;
// anything else is rendered with fmt.
func FromValue(v any) Cell {
	switch t := v.(type) {
	case nil:
		return Null()
	case Cell:
		return t
	case string:
		return Text(t)
	case []byte:
		return Text(string(t))
	case int:
		return Number(float64(t))
	case int8:
		return Number(float64(t))
	case int16:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint:
		return Number(float64(t))
	case uint8:
		return Number(float64(t))
	case uint16:
		return Number(float64(t))
	case uint32:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case float32:
		return Number(float64(t))
	case float64:
		return Number(t)
	case *big.Rat:
		f, _ := t.Float64()
		return Number(f)
	case *big.Int:
		f, _ := new(big.Float).SetInt(t).Float64()
		return Number(f)
	case bool:
		return Text(strconv.FormatBool(t))
	case time.Time:
		if t.Location() == time.UTC {
			return Text(t.Format(timeLayout))
		}
		return Text(t.Format(timeLayout + "Z07:00"))
	case [16]byte:
		return Text(uuid.UUID(t).String())
	case uuid.UUID:
		return Text(t.String())
	case driver.Valuer:
		inner, err := t.Value()
		if err != nil {
			return Null()
		}
		if _, again := inner.(driver.Valuer); again {
			return Text(fmt.Sprint(inner))
		}
		return FromValue(inner)
	case fmt.Stringer:
		return Text(t.String())
	default:
		return Text(fmt.Sprint(v))
	}
}
