package directory

import "github.com/buzzbuddies/backend/internal/docstore"

// Collection and field names of the user document tree.
const (
	UsersCollection    = "users"
	RequestsCollection = "friendRequests"
	FriendsCollection  = "friends"
	BuzzesCollection   = "buzzes"

	FieldEmail     = "email"
	FieldFirstName = "firstName"
	FieldLastName  = "lastName"
	FieldFromUID   = "fromUID"
	FieldTimestamp = "timestamp"
)

// Users is the users collection.
func Users() docstore.CollectionRef { return docstore.Collection(UsersCollection) }

// UserDoc addresses users/{uid}.
func UserDoc(uid string) docstore.DocRef { return Users().Doc(uid) }

// RequestsOf addresses users/{uid}/friendRequests.
func RequestsOf(uid string) docstore.CollectionRef {
	return UserDoc(uid).Collection(RequestsCollection)
}

// FriendsOf addresses users/{uid}/friends.
func FriendsOf(uid string) docstore.CollectionRef {
	return UserDoc(uid).Collection(FriendsCollection)
}

// BuzzesOf addresses users/{uid}/buzzes.
func BuzzesOf(uid string) docstore.CollectionRef {
	return UserDoc(uid).Collection(BuzzesCollection)
}
