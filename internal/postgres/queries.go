package postgres

// Таблицы принадлежат основному приложению (Prisma): имена в кавычках, camelCase.
const (
	QueryGetUserByID = `
		SELECT id, "firstName", "lastName", "userType", "isActive"
		FROM "User"
		WHERE id = $1;
	`
	QueryGetSessionSettings = `
		SELECT "maxParticipants", "allowRecording", "allowScreenSharing", "allowChat", "waitingRoomEnabled"
		FROM "Session"
		WHERE "sessionId" = $1;
	`
)
