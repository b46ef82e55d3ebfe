package scheduler

import "fmt"

// FormatSystemValue renders a system aggregate. Averages always carry two
// decimals; sums carry fewer decimals the larger they are.
func FormatSystemValue(v float64, average bool) string {
    switch {
    case average:
        return fmt.Sprintf("%.2f", v)
    case v > 100:
        return fmt.Sprintf("%.0f", v)
    case v > 10:
        return fmt.Sprintf("%.1f", v)
    default:
        return fmt.Sprintf("%.2f", v)
    }
}

func gcd(a, b int) int {
    for b != 0 { a, b = b, a%b }
    return a
}

// tickFor returns the greatest common divisor of base and every interval.
func tickFor(base int, intervals ...int) int {
    t := base
    for _, iv := range intervals {
        if iv > 0 { t = gcd(t, iv) }
    }
    if t <= 0 { return base }
    return t
}
