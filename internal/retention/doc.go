// Package retention lists and prunes event directories under the recorder's
// output directory.
package retention
