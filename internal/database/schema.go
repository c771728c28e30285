package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema creates the tables owned by the booking core.  showtimes and
// events rows are inserted by the scheduling process; the core only
// decrements their counters.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS showtimes (
		id                 BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		capacity           INT NOT NULL,
		remaining_seats    INT NOT NULL,
		ticket_price_cents BIGINT NOT NULL,
		CONSTRAINT chk_showtimes_remaining CHECK (remaining_seats >= 0 AND remaining_seats <= capacity)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS events (
		id                BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		capacity          INT NOT NULL,
		remaining_tickets INT NOT NULL,
		CONSTRAINT chk_events_remaining CHECK (remaining_tickets >= 0 AND remaining_tickets <= capacity)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id                 CHAR(36) NOT NULL PRIMARY KEY,
		user_id            BIGINT UNSIGNED NOT NULL,
		kind               ENUM('SEAT','EVENT') NOT NULL,
		showtime_id        BIGINT UNSIGNED NULL,
		event_id           BIGINT UNSIGNED NULL,
		seats              JSON NULL,
		ticket_count       INT NOT NULL,
		total_amount_cents BIGINT NOT NULL,
		created_at         DATETIME(6) NOT NULL,
		KEY idx_bookings_user_created (user_id, created_at),
		CONSTRAINT fk_bookings_showtime FOREIGN KEY (showtime_id) REFERENCES showtimes (id) ON DELETE RESTRICT,
		CONSTRAINT fk_bookings_event FOREIGN KEY (event_id) REFERENCES events (id) ON DELETE RESTRICT
	) ENGINE=InnoDB`,
	// Seat tokens are opaque: "a1" and "A1" are different seats, so the
	// key column compares bytes rather than using the server collation.
	`CREATE TABLE IF NOT EXISTS booked_seats (
		showtime_id BIGINT UNSIGNED NOT NULL,
		seat_id     VARCHAR(32) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL,
		booking_id  CHAR(36) NOT NULL,
		PRIMARY KEY (showtime_id, seat_id),
		KEY idx_booked_seats_booking (booking_id),
		CONSTRAINT fk_booked_seats_showtime FOREIGN KEY (showtime_id) REFERENCES showtimes (id) ON DELETE RESTRICT
	) ENGINE=InnoDB`,
}

// EnsureSchema creates missing tables.  It is idempotent.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
