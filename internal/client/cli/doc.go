// Package cli is the interactive NutriTrack client: a REPL over the offline
// write queue. Meals and workouts are always stored locally first and sent
// to the backend when it is reachable; a background watcher replays the
// queue whenever connectivity comes back.
//
// Commands
//
//	addmeal              record a meal
//	addworkout           record a workout
//	list <kind>          show queued records (meals | workouts)
//	sync                 replay unsynced records now
//	status               connectivity, pending counts, last replay
//	purge <kind>         drop synced records of a kind
//	foods                show the offline food cache
//	color                show the backend deploy color
//	help | exit | quit
package cli
