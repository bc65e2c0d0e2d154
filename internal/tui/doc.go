// Package tui is the terminal dashboard of a running fleet.
//
// It shows one table row per session, refreshed from the coordinator's
// status snapshot, and turns key presses into coordinator commands:
//
//	p / r   pause or resume the selected session
//	P / R   pause or resume every session
//	n       switch the selected session to the next device of its group
//	s       stop the fleet
//	q       stop the fleet and leave
package tui
